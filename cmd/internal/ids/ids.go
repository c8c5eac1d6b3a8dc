// Package ids provides the identifier primitives used by valentine records and capability tokens.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ULIDLength is the canonical string length of a ULID.
const ULIDLength = 26

// NewULID returns a new ULID string (26 chars).
// ULIDs are lexicographically sortable, so valentine ids sort by creation time.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidULID reports whether s parses as a ULID.
func ValidULID(s string) bool {
	if len(s) != ULIDLength {
		return false
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// NewTokenID returns a random UUIDv4 used as a capability token id.
func NewTokenID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ValidTokenID reports whether s is a canonical UUID string.
func ValidTokenID(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.String() == s
}
