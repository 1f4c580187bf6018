package phase

import "errors"

// Domain errors for the phase package.
var (
	// ErrPhaseNotFound is returned when a phase ID does not exist.
	ErrPhaseNotFound = errors.New("phase: not found")

	// ErrPhaseEnded is returned when mutating a phase that has ended.
	ErrPhaseEnded = errors.New("phase: already ended")

	// ErrFieldNotFound is returned when a field definition does not exist.
	ErrFieldNotFound = errors.New("phase: field not found")

	// ErrFieldExists is returned when declaring a field name already
	// present in the phase schema.
	ErrFieldExists = errors.New("phase: field already exists")

	// ErrFieldReserved is returned when mutating one of the default
	// fields (latitude, longitude, temperature, battery).
	ErrFieldReserved = errors.New("phase: field is reserved")

	// ErrInvalidFieldType is returned when a field type is not recognised.
	ErrInvalidFieldType = errors.New("phase: invalid field type")

	// ErrInvalidFieldName is returned when a field name is empty or
	// malformed.
	ErrInvalidFieldName = errors.New("phase: invalid field name")

	// ErrTypeMismatch is returned when a telemetry value does not match
	// the declared field type.
	ErrTypeMismatch = errors.New("phase: value does not match declared type")
)
