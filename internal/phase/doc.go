// Package phase holds the monitoring-phase scoping record and the
// per-phase telemetry field schema.
//
// Each phase declares which custom fields its devices may report and
// with what type. Projection through the schema is strict on types and
// silent on unknowns: a declared field with a mistyped value fails the
// uplink, an undeclared field is discarded.
package phase
