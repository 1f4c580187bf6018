// Package telemetry stores accepted telemetry records.
//
// The store is append-only: ingestion inserts rows inside the pipeline
// transaction, readers slice them by received_at window, and the only
// delete path is retention pruning. Custom schema fields are serialised
// as a JSON object alongside the reserved metric columns so window
// queries never need to join the phase schema.
package telemetry
