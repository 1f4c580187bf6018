package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldtrace/fieldtrace-core/internal/auth"
	"github.com/fieldtrace/fieldtrace-core/internal/device"
	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
	"github.com/fieldtrace/fieldtrace-core/internal/ingest"
	"github.com/fieldtrace/fieldtrace-core/internal/phase"
	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/stats"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeSessionInactive = "session_inactive"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain error onto the HTTP taxonomy:
// authentication failures are 401, inactive sessions and validation
// failures 400, unknown entities 404, uniqueness clashes 409, and
// anything unrecognised a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	// Authentication: missing, malformed, expired, or revoked tokens.
	case errors.Is(err, ingest.ErrMissingToken),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())

	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())

	case errors.Is(err, ingest.ErrSessionInactive),
		errors.Is(err, session.ErrNotActive):
		writeError(w, http.StatusBadRequest, ErrCodeSessionInactive, err.Error())

	case errors.Is(err, ingest.ErrNodeNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, phase.ErrPhaseNotFound),
		errors.Is(err, phase.ErrFieldNotFound),
		errors.Is(err, geofence.ErrGeofenceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())

	case errors.Is(err, session.ErrAliasTaken),
		errors.Is(err, session.ErrDeviceUnavailable),
		errors.Is(err, device.ErrDeviceExists),
		errors.Is(err, phase.ErrFieldExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())

	case errors.Is(err, ingest.ErrMalformedPayload),
		errors.Is(err, phase.ErrTypeMismatch),
		errors.Is(err, phase.ErrFieldReserved),
		errors.Is(err, phase.ErrInvalidFieldType),
		errors.Is(err, phase.ErrInvalidFieldName),
		errors.Is(err, phase.ErrPhaseEnded),
		errors.Is(err, session.ErrInvalidAlias),
		errors.Is(err, session.ErrInvalidLifecycle),
		errors.Is(err, session.ErrTerminalState),
		errors.Is(err, session.ErrNotAddressable),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidKind),
		errors.Is(err, device.ErrInvalidAvailability),
		errors.Is(err, geofence.ErrRingNotClosed),
		errors.Is(err, geofence.ErrRingTooSmall),
		errors.Is(err, geofence.ErrInvalidCoordinate),
		errors.Is(err, geofence.ErrInvalidName),
		errors.Is(err, stats.ErrInvalidMetric),
		errors.Is(err, stats.ErrInvalidRange),
		errors.Is(err, stats.ErrInvalidPoints),
		errors.Is(err, telemetry.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())

	default:
		writeInternalError(w, "internal server error")
	}
}
