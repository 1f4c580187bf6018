package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose name is
	// already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidKind is returned when a kind value is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidAvailability is returned when an availability value is
	// not recognised.
	ErrInvalidAvailability = errors.New("device: invalid availability")
)
