package ingest

import (
	"encoding/json"
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/influxdb"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/mqtt"
	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/stats"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

// InfluxMirror mirrors accepted telemetry into InfluxDB. Writes are
// batched and non-blocking; SQLite remains the source of truth and
// the mirror is purely additive.
type InfluxMirror struct {
	client *influxdb.Client
}

// NewInfluxMirror creates a mirror over a connected client.
func NewInfluxMirror(client *influxdb.Client) *InfluxMirror {
	return &InfluxMirror{client: client}
}

// TelemetryAccepted writes one point per present reserved metric plus
// a position point when coordinates were reported.
func (m *InfluxMirror) TelemetryAccepted(rec *telemetry.Record, _ *session.Session) {
	if rec.Temperature != nil {
		m.client.WriteTelemetry(rec.SessionID, string(stats.MetricTemperature), *rec.Temperature, rec.ReceivedAt)
	}
	if rec.Battery != nil {
		m.client.WriteTelemetry(rec.SessionID, string(stats.MetricBattery), *rec.Battery, rec.ReceivedAt)
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		m.client.WritePosition(rec.SessionID, *rec.Latitude, *rec.Longitude, rec.ReceivedAt)
	}
}

// GeofenceExited records the exit event.
func (m *InfluxMirror) GeofenceExited(ev geofence.ExitEvent) {
	m.client.WriteGeofenceExit(ev.SessionID, ev.GeofenceID, ev.OccurredAt)
}

// AlertPublisher publishes geofence exit alerts over MQTT.
type AlertPublisher struct {
	client *mqtt.Client
	topics mqtt.Topics
	logger Logger
}

// NewAlertPublisher creates an MQTT alert publisher.
func NewAlertPublisher(client *mqtt.Client) *AlertPublisher {
	return &AlertPublisher{client: client, logger: noopLogger{}}
}

// SetLogger sets the logger for the publisher.
func (a *AlertPublisher) SetLogger(logger Logger) {
	a.logger = logger
}

// TelemetryAccepted is a no-op; only alerts go out over MQTT.
func (a *AlertPublisher) TelemetryAccepted(*telemetry.Record, *session.Session) {}

// GeofenceExited publishes the exit event at QoS 1.
func (a *AlertPublisher) GeofenceExited(ev geofence.ExitEvent) {
	payload, err := json.Marshal(struct {
		geofence.ExitEvent
		PublishedAt time.Time `json:"published_at"`
	}{ExitEvent: ev, PublishedAt: time.Now().UTC()})
	if err != nil {
		a.logger.Error("serialising exit alert", "error", err)
		return
	}

	topic := a.topics.GeofenceExit(ev.GeofenceID)
	if err := a.client.Publish(topic, payload, 1, false); err != nil {
		a.logger.Warn("publishing exit alert failed", "topic", topic, "error", err)
	}
}
