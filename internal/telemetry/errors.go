package telemetry

import "errors"

var (
	// ErrInvalidWindow indicates a query window whose end precedes its start.
	ErrInvalidWindow = errors.New("telemetry: window end precedes start")
)
