package session

import "time"

// Session binds a device to a phase for the duration of a deployment.
// Aliases are unique within a phase and are how gateways name the nodes
// they relay for.
type Session struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	PhaseID  string `json:"phase_id"`
	Alias    string `json:"alias"`

	Lifecycle Lifecycle `json:"lifecycle"`

	// Rolling ingest state, updated atomically per accepted uplink.
	MessageCount    int64      `json:"message_count"`
	LastContactAt   *time.Time `json:"last_contact_at,omitempty"`
	LastTemperature *float64   `json:"last_temperature,omitempty"`
	LastBattery     *float64   `json:"last_battery,omitempty"`

	// IdentityToken is set for standalone and gateway devices only.
	// Nodes are never directly addressable and carry no token.
	IdentityToken *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lifecycle is the session state machine.
//
// inactive <-> active transitions are free in both directions; archived
// is terminal and can be entered from either.
type Lifecycle string

// Lifecycle constants.
const (
	LifecycleInactive Lifecycle = "inactive"
	LifecycleActive   Lifecycle = "active"
	LifecycleArchived Lifecycle = "archived"
)

// IsValid reports whether the lifecycle is a recognised value.
func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleInactive, LifecycleActive, LifecycleArchived:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a session may move from l to target.
// Archived is terminal; everything else is reachable from anywhere.
func (l Lifecycle) CanTransition(target Lifecycle) bool {
	if !target.IsValid() {
		return false
	}
	if l == LifecycleArchived {
		return false
	}
	return true
}
