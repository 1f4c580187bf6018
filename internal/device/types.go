package device

import "time"

// Device represents a physical field unit in the fleet registry.
// This matches the devices table in the initial schema migration.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Kind determines how the device reaches the backend. Standalone and
	// gateway devices hold their own identity token; nodes only ever
	// report through a gateway and are never directly addressable.
	Kind Kind `json:"kind"`

	// Availability tracks whether the device can be attached to a phase.
	Availability Availability `json:"availability"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind classifies how a device communicates with the backend.
type Kind string

// Kind constants.
const (
	// KindStandalone is a self-contained unit with its own uplink.
	KindStandalone Kind = "standalone"

	// KindGateway is an uplink-carrying unit that relays for nodes.
	KindGateway Kind = "gateway"

	// KindNode is a short-range unit that reports via a gateway.
	KindNode Kind = "node"
)

// AllKinds returns all valid kind values.
func AllKinds() []Kind {
	return []Kind{KindStandalone, KindGateway, KindNode}
}

// IsValid reports whether the kind is a recognised value.
func (k Kind) IsValid() bool {
	switch k {
	case KindStandalone, KindGateway, KindNode:
		return true
	default:
		return false
	}
}

// Addressable reports whether devices of this kind hold their own
// identity token. Nodes do not; they are reached through a gateway.
func (k Kind) Addressable() bool {
	return k == KindStandalone || k == KindGateway
}

// Availability tracks whether a device can be attached to a phase.
type Availability string

// Availability constants.
const (
	// AvailabilityAvailable means the device is free to attach.
	AvailabilityAvailable Availability = "available"

	// AvailabilityUnavailable means the device is out of service
	// (maintenance, lost, decommissioned).
	AvailabilityUnavailable Availability = "unavailable"

	// AvailabilityInUse means the device has an attached session.
	AvailabilityInUse Availability = "inuse"
)

// AllAvailabilities returns all valid availability values.
func AllAvailabilities() []Availability {
	return []Availability{
		AvailabilityAvailable, AvailabilityUnavailable, AvailabilityInUse,
	}
}

// IsValid reports whether the availability is a recognised value.
func (a Availability) IsValid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityUnavailable, AvailabilityInUse:
		return true
	default:
		return false
	}
}
