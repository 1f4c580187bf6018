// Package influxdb provides a write-only mirror of ingested telemetry
// for external dashboards.
//
// SQLite remains the system of record; this mirror exists so Grafana and
// similar tooling can query fleet telemetry without touching the primary
// store. Writes are batched and non-blocking, and the mirror is optional:
// when disabled in configuration the rest of the system runs unchanged.
package influxdb
