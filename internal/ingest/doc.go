// Package ingest is the telemetry acceptance pipeline.
//
// Two entry points, HTTP and MQTT, share one core: resolve the
// identity token to a session, require the active lifecycle, project
// the payload through the phase field schema, then commit the
// telemetry record, the session contact update and (for relayed
// traffic) the gateway link in a single transaction. Every rejection
// happens before the first write. Geofence evaluation and the
// InfluxDB/MQTT/WebSocket fan-out run after the commit.
package ingest
