package stats

import "errors"

var (
	// ErrInvalidMetric indicates a metric other than temperature or battery.
	ErrInvalidMetric = errors.New("stats: unrecognised metric")

	// ErrInvalidRange indicates an unrecognised window range.
	ErrInvalidRange = errors.New("stats: unrecognised range")

	// ErrInvalidPoints indicates a non-positive bucket count.
	ErrInvalidPoints = errors.New("stats: point count must be positive")
)
