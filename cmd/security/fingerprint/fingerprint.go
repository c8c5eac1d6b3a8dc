package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// SaltEnvKey is the env var name for the fingerprint salt.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SaltEnvKey = "VALENTINE_FINGERPRINT_SALT"

	// ModeEnvKey selects the fingerprint algorithm.
	ModeEnvKey = "VALENTINE_FINGERPRINT_MODE"

	// MinSaltBytes is the minimum salt size enforced by the startup policy.
	MinSaltBytes = 16
)

// Mode selects the digest algorithm.
type Mode string

const (
	ModeHMAC     Mode = "hmac"
	ModeArgon2id Mode = "argon2id"
)

// ParseMode maps a config string to a Mode. Empty means ModeHMAC.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHMAC:
		return ModeHMAC, nil
	case ModeArgon2id:
		return ModeArgon2id, nil
	default:
		return "", ErrUnknownMode
	}
}

// Argon2idParams controls Argon2id cost in argon2id mode.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultArgon2idParams returns parameters tuned for a per-request cost of a few milliseconds.
// Every guess hashes once, so these stay well below interactive-login settings.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   19 * 1024,
		Iterations:  2,
		Parallelism: 1,
		KeyLength:   DigestBytes,
	}
}

// Hasher computes fingerprints with a fixed salt and mode.
type Hasher struct {
	mode   Mode
	salt   []byte
	params Argon2idParams
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithMode sets the digest mode.
func WithMode(m Mode) Option {
	return func(h *Hasher) {
		if m != "" {
			h.mode = m
		}
	}
}

// DigestBytes is the raw fingerprint length in every mode (64 hex chars).
const DigestBytes = 32

// WithArgon2idParams overrides the argon2id cost parameters.
// KeyLength must equal DigestBytes; other values are ignored.
func WithArgon2idParams(p Argon2idParams) Option {
	return func(h *Hasher) {
		if p.MemoryKiB > 0 && p.Iterations > 0 && p.Parallelism > 0 && p.KeyLength == DigestBytes {
			h.params = p
		}
	}
}

// New constructs a Hasher. An empty salt selects the unsalted SHA-256 dev mode.
func New(salt []byte, opts ...Option) *Hasher {
	h := &Hasher{
		mode:   ModeHMAC,
		salt:   append([]byte(nil), salt...),
		params: DefaultArgon2idParams(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// FromEnv builds a Hasher from VALENTINE_FINGERPRINT_SALT and VALENTINE_FINGERPRINT_MODE.
// A missing salt is allowed here; policy enforcement lives in SaltFromEnv.
func FromEnv() (*Hasher, error) {
	mode, err := ParseMode(os.Getenv(ModeEnvKey))
	if err != nil {
		return nil, err
	}
	salt := strings.TrimSpace(os.Getenv(SaltEnvKey))
	return New([]byte(salt), WithMode(mode)), nil
}

// SaltFromEnv returns the configured salt bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrSaltMissing.
// If too short -> ErrSaltTooShort.
func SaltFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(SaltEnvKey))
	if raw == "" {
		return nil, ErrSaltMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSaltTooShort
	}
	return b, nil
}

// Salted reports whether the hasher mixes a secret into its digests.
func (h *Hasher) Salted() bool {
	return h != nil && len(h.salt) > 0
}

// Mode returns the active mode.
func (h *Hasher) Mode() Mode {
	if h == nil {
		return ModeHMAC
	}
	return h.mode
}

// Fingerprint returns the 64-char hex digest for a normalized phone number.
func (h *Hasher) Fingerprint(phone string) string {
	if !h.Salted() {
		return HashSHA256Hex(phone)
	}
	switch h.mode {
	case ModeArgon2id:
		key := argon2.IDKey(
			[]byte(phone),
			h.salt,
			h.params.Iterations,
			h.params.MemoryKiB,
			h.params.Parallelism,
			h.params.KeyLength,
		)
		return hex.EncodeToString(key)
	default:
		return HashHMACSHA256Hex(phone, h.salt)
	}
}

// Equal compares two fingerprints in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}
