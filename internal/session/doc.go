// Package session manages device-phase sessions: the binding of a
// registered device to a monitoring phase under a phase-unique alias.
//
// A session carries the device's rolling ingest state (message count,
// last contact, last temperature and battery) and, for standalone and
// gateway devices, the signed identity token the device presents on
// every uplink. The lifecycle is a three-state machine where archived
// is terminal.
package session
