// Package mqtt provides the broker connection for the fieldtrace ingest
// bridge.
//
// Field devices with an MQTT-only uplink publish telemetry to the
// fieldtrace/ingest/* topics; the bridge in internal/ingest subscribes
// here and feeds the same pipeline the HTTP handlers use. The wrapper
// tracks subscriptions so they survive reconnects, recovers handler
// panics, and announces backend liveness on fieldtrace/system/status
// with an LWT for crash detection.
package mqtt
