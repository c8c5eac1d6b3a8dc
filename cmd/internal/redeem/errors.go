package redeem

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("valentine not found")
	ErrInvalidCode      = errors.New("invalid or expired otp")
	ErrInvalidOrExpired = errors.New("invalid or expired link")
	ErrRateLimited      = errors.New("rate limited")
)

// OpError carries the failing operation alongside a sentinel Kind.
// Msg must never contain phones, codes or capabilities.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// RateLimitError reports how long the caller should wait.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("%s: %v: retry after %s", e.Op, ErrRateLimited, e.RetryAfter)
}

func (e RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter extracts the wait hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var rl RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

func invalidLink(op string) error {
	return OpError{Op: op, Kind: ErrInvalidOrExpired}
}
