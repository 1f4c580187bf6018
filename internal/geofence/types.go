package geofence

import "time"

// Point is a single (latitude, longitude) vertex.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geofence is a closed polygon scoped to a phase. The ring must be
// closed (first vertex equals last) with at least three distinct
// vertices. ExitAlertCount only ever moves forward, incremented once
// per inside-to-outside transition.
type Geofence struct {
	ID             string    `json:"id"`
	PhaseID        string    `json:"phase_id"`
	Name           string    `json:"name"`
	Ring           []Point   `json:"ring"`
	Active         bool      `json:"active"`
	ExitAlertCount int64     `json:"exit_alert_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ExitEvent reports a session crossing from inside a geofence to
// outside it. Re-entry is silent and produces no event.
type ExitEvent struct {
	GeofenceID   string    `json:"geofence_id"`
	GeofenceName string    `json:"geofence_name"`
	PhaseID      string    `json:"phase_id"`
	SessionID    string    `json:"session_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	OccurredAt   time.Time `json:"occurred_at"`
}
