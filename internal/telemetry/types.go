package telemetry

import (
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/phase"
)

// Record is a single accepted telemetry message. Records are append
// only; nothing updates a row after insert.
type Record struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`

	// EventTime is when the device says the reading happened.
	// ReceivedAt is when the server accepted it; window queries and
	// statistics bucket on ReceivedAt.
	EventTime  time.Time `json:"event_time"`
	ReceivedAt time.Time `json:"received_at"`

	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Battery     *float64 `json:"battery,omitempty"`

	// Fields holds the custom schema fields that survived projection.
	Fields map[string]phase.FieldValue `json:"fields,omitempty"`
}

// Position is the latest known location of a session, for the map feed.
type Position struct {
	SessionID  string    `json:"session_id"`
	Alias      string    `json:"alias"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ReceivedAt time.Time `json:"received_at"`
}
