package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultDeviceTokenTTL applies when no TTL is configured. Field
// deployments run for weeks, so device tokens are long-lived.
const defaultDeviceTokenTTL = 30 * 24 * time.Hour

// DeviceClaims extends JWT standard claims with the device-phase session
// binding. The token carries only the session ID; everything else about
// the device is resolved server-side.
type DeviceClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// GenerateDeviceToken creates a signed identity token for a device-phase
// session. Tokens are HS256-signed and carry a unique jti, so rotating a
// session's token always yields a distinct string even within the same
// second.
func GenerateDeviceToken(sessionID, secret string, ttl time.Duration) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrTokenInvalid)
	}
	if ttl <= 0 {
		ttl = defaultDeviceTokenTTL
	}

	now := time.Now()
	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}

// ParseDeviceToken validates and parses a device identity token.
// It checks the signature, expiry, and the session binding.
func ParseDeviceToken(tokenString, secret string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrTokenInvalid)
	}

	return claims, nil
}
