package ingest

import "errors"

var (
	// ErrSessionInactive indicates the target session is not in the
	// active lifecycle state. Nothing is written.
	ErrSessionInactive = errors.New("ingest: session not active")

	// ErrNodeNotFound indicates a relayed payload named an alias with
	// no session in the gateway's phase.
	ErrNodeNotFound = errors.New("ingest: node alias not found")

	// ErrMissingToken indicates a request without a bearer token.
	ErrMissingToken = errors.New("ingest: missing identity token")

	// ErrMalformedPayload indicates a payload that could not be decoded.
	ErrMalformedPayload = errors.New("ingest: malformed payload")
)
