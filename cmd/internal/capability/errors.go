package capability

import "errors"

var (
	// ErrInvalidOrExpired is the single failure returned by Verify.
	// Malformed, tampered, foreign-issuer and expired tokens are indistinguishable to callers.
	ErrInvalidOrExpired = errors.New("capability invalid or expired")

	// ErrInvalidClaims is returned by Sign when required claims are missing.
	ErrInvalidClaims = errors.New("invalid capability claims")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
