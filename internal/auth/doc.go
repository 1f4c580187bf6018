// Package auth provides device identity tokens and the operator
// capability gate.
//
// Device tokens are HS256-signed JWTs carrying a single claim of
// interest: the device-phase session ID. Verification is two-step:
// the signature and expiry are checked here, then the ingestion layer
// compares the presented token against the session's stored token so
// rotation revokes older, still-unexpired tokens.
//
// Operator authorisation is deliberately thin: a CapabilityFunc plugged
// in at startup. The permission model itself belongs to the surrounding
// platform, not this service.
package auth
