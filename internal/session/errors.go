package session

import "errors"

// Domain errors for the session package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, session.ErrTerminalState) {
//	    // archived sessions never come back
//	}
var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrDeviceUnavailable is returned when attaching a device that is
	// not in the available state.
	ErrDeviceUnavailable = errors.New("session: device unavailable")

	// ErrAliasTaken is returned when an alias is already used within
	// the phase.
	ErrAliasTaken = errors.New("session: alias already taken in phase")

	// ErrInvalidAlias is returned when an alias is empty or malformed.
	ErrInvalidAlias = errors.New("session: invalid alias")

	// ErrInvalidLifecycle is returned when a lifecycle value is not
	// recognised.
	ErrInvalidLifecycle = errors.New("session: invalid lifecycle")

	// ErrTerminalState is returned when transitioning out of archived.
	ErrTerminalState = errors.New("session: archived is terminal")

	// ErrNotAddressable is returned when requesting a token operation
	// for a node-kind device, which never holds its own token.
	ErrNotAddressable = errors.New("session: device kind is not addressable")

	// ErrNotActive is returned when an operation requires an active
	// session.
	ErrNotActive = errors.New("session: not active")
)
