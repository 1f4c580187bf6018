package geofence

import "errors"

var (
	// ErrGeofenceNotFound indicates the requested geofence does not exist.
	ErrGeofenceNotFound = errors.New("geofence: not found")

	// ErrRingNotClosed indicates a ring whose first vertex does not
	// equal its last.
	ErrRingNotClosed = errors.New("geofence: ring is not closed")

	// ErrRingTooSmall indicates a ring with fewer than three distinct
	// vertices.
	ErrRingTooSmall = errors.New("geofence: ring needs at least three distinct vertices")

	// ErrInvalidCoordinate indicates a vertex outside the valid
	// latitude/longitude range.
	ErrInvalidCoordinate = errors.New("geofence: coordinate out of range")

	// ErrInvalidName indicates an empty or oversized geofence name.
	ErrInvalidName = errors.New("geofence: invalid name")
)
