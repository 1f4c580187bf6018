package auth

import "errors"

// Sentinel errors for token verification and the capability gate.
var (
	// ErrTokenInvalid is returned when a token fails signature or claim
	// validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("auth: token has expired")

	// ErrTokenRevoked is returned when a token no longer matches the
	// session's stored token, i.e. it was rotated away.
	ErrTokenRevoked = errors.New("auth: token has been revoked")

	// ErrForbidden is returned when the capability gate denies an
	// operator mutation.
	ErrForbidden = errors.New("auth: insufficient capabilities")
)
