package fingerprint

import "errors"

// Public, stable errors for callers.
var (
	ErrSaltMissing  = errors.New("fingerprint salt missing")
	ErrSaltTooShort = errors.New("fingerprint salt too short")
	ErrUnknownMode  = errors.New("unknown fingerprint mode")
)
