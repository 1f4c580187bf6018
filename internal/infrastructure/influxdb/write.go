package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetry mirrors a single numeric telemetry value for a session.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Timestamps carry the record's event time rather than the wall clock,
// so delayed uplinks land at the right point on dashboards.
//
// Example:
//
//	client.WriteTelemetry("sess-01", "temperature", 21.5, rec.EventTime)
//	client.WriteTelemetry("sess-01", "battery", 87.0, rec.EventTime)
func (c *Client) WriteTelemetry(sessionID string, metric string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"telemetry",
		map[string]string{
			"session_id": sessionID,
			"metric":     metric,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePosition mirrors a session position fix.
func (c *Client) WritePosition(sessionID string, lat, lng float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"position",
		map[string]string{
			"session_id": sessionID,
		},
		map[string]interface{}{
			"latitude":  lat,
			"longitude": lng,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WriteGeofenceExit mirrors a geofence exit alert.
func (c *Client) WriteGeofenceExit(sessionID string, geofenceID string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"geofence_exit",
		map[string]string{
			"session_id":  sessionID,
			"geofence_id": geofenceID,
		},
		map[string]interface{}{
			"count": 1,
		},
		ts,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
