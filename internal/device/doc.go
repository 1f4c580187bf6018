// Package device implements the fleet device registry.
//
// A device is a physical field unit: a standalone tracker with its own
// uplink, a gateway that relays for short-range units, or a node that
// only ever reports through a gateway. Devices move between availability
// states as they are attached to and detached from monitoring phases.
package device
