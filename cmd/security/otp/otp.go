// Package otp issues and checks the short numeric codes that prove a sender owns their phone.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is how long an issued code stays acceptable.
	DefaultTTL = 5 * time.Minute

	// Codes are uniform over [codeMin, codeMax].
	codeMin = 100000
	codeMax = 999999

	// CodeLength is the number of digits in every code.
	CodeLength = 6
)

// Code is an issued one-time code.
type Code struct {
	Value     string
	ExpiresAt time.Time
}

// Issuer generates codes.
type Issuer struct {
	ttl  time.Duration
	rand io.Reader
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithRandom overrides the entropy source (tests).
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) {
		if r != nil {
			i.rand = r
		}
	}
}

// NewIssuer constructs an Issuer. ttl <= 0 selects DefaultTTL.
func NewIssuer(ttl time.Duration, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{ttl: ttl, rand: rand.Reader}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// TTL returns the configured validity window.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue draws a fresh code valid until now+TTL.
func (i *Issuer) Issue(now time.Time) (Code, error) {
	n, err := rand.Int(i.rand, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return Code{}, err
	}
	return Code{
		Value:     strconv.FormatInt(n.Int64()+codeMin, 10),
		ExpiresAt: now.Add(i.ttl),
	}, nil
}

// Matches reports whether presented is an acceptable code for the stored state.
// A nil stored code never matches.
func Matches(stored *string, expiresAt *time.Time, presented string, now time.Time) bool {
	if stored == nil || expiresAt == nil {
		return false
	}
	if !now.Before(*expiresAt) {
		return false
	}
	presented = strings.TrimSpace(presented)
	if len(presented) != CodeLength {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}

// WellFormed reports whether s looks like a code this package could have issued.
func WellFormed(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s[0] != '0'
}
