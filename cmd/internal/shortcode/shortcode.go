// Package shortcode maps short human-shareable codes to signed capabilities.
//
// Codes are 6 characters drawn uniformly from the URL-safe base64 alphabet,
// which gives 64^6 (about 6.9e10) possible codes. Uniqueness is enforced by
// the store; Mint redraws on any collision.
package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"time"
)

const (
	// Length is the number of characters in a code.
	Length = 6

	// Alphabet is the URL-safe base64 alphabet.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	defaultMaxAttempts = 32
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("short code not found")
	ErrCodeTaken    = errors.New("short code taken")
	ErrExhausted    = errors.New("short code space exhausted")
)

// Record is one registry entry.
type Record struct {
	Code        string
	Capability  string
	TokenID     string
	ValentineID string
	Used        bool
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Active reports whether the code may still be resolved at now.
func (r Record) Active(now time.Time) bool {
	return !r.Used && now.Before(r.ExpiresAt)
}

// Store is the persistence boundary for short codes.
type Store interface {
	Exists(ctx context.Context, code string) (bool, error)
	// Insert returns ErrCodeTaken when the code already exists.
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, code string) (Record, error)
	// MarkUsed flips used=false -> true for an unexpired code.
	MarkUsed(ctx context.Context, code string, now time.Time) error
}

// Generator draws one candidate code.
type Generator func() (string, error)

// NewRandomGenerator draws codes from r (crypto/rand when nil).
// 256 is a multiple of 64, so masking a byte keeps the draw uniform.
func NewRandomGenerator(r io.Reader) Generator {
	if r == nil {
		r = rand.Reader
	}
	return func() (string, error) {
		buf := make([]byte, Length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for i, b := range buf {
			buf[i] = Alphabet[b&63]
		}
		return string(buf), nil
	}
}

// Registry mints and resolves short codes.
type Registry struct {
	store       Store
	gen         Generator
	maxAttempts int
	onCollision func()
}

// Option configures a Registry.
type Option func(*Registry)

// WithGenerator overrides the code generator (tests).
func WithGenerator(g Generator) Option {
	return func(r *Registry) {
		if g != nil {
			r.gen = g
		}
	}
}

// WithMaxAttempts bounds the redraw loop.
func WithMaxAttempts(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithCollisionHook is called once per redraw.
func WithCollisionHook(fn func()) Option {
	return func(r *Registry) {
		r.onCollision = fn
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	r := &Registry{
		store:       store,
		gen:         NewRandomGenerator(nil),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// MintInput describes the capability a new code points at.
type MintInput struct {
	Capability  string
	TokenID     string
	ValentineID string
	ExpiresAt   time.Time
	Now         time.Time
}

// Mint stores a fresh unique code for in and returns it.
func (r *Registry) Mint(ctx context.Context, in MintInput) (string, error) {
	if strings.TrimSpace(in.Capability) == "" || strings.TrimSpace(in.TokenID) == "" || strings.TrimSpace(in.ValentineID) == "" {
		return "", ErrInvalidInput
	}
	if !in.ExpiresAt.After(in.Now) {
		return "", ErrInvalidInput
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := r.gen()
		if err != nil {
			return "", err
		}
		if !ValidCode(code) {
			return "", ErrInvalidInput
		}

		taken, err := r.store.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if taken {
			r.collided()
			continue
		}

		err = r.store.Insert(ctx, Record{
			Code:        code,
			Capability:  in.Capability,
			TokenID:     in.TokenID,
			ValentineID: in.ValentineID,
			ExpiresAt:   in.ExpiresAt,
			CreatedAt:   in.Now,
		})
		if errors.Is(err, ErrCodeTaken) {
			// Lost a race against a concurrent mint.
			r.collided()
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", ErrExhausted
}

// Resolve returns the entry for code. Missing, used and expired codes are all ErrNotFound.
func (r *Registry) Resolve(ctx context.Context, code string, now time.Time) (Record, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return Record{}, ErrNotFound
	}
	rec, err := r.store.Get(ctx, code)
	if err != nil {
		return Record{}, err
	}
	if !rec.Active(now) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// MarkUsed retires code. A second call returns ErrNotFound.
func (r *Registry) MarkUsed(ctx context.Context, code string, now time.Time) error {
	if !ValidCode(code) {
		return ErrNotFound
	}
	return r.store.MarkUsed(ctx, code, now)
}

func (r *Registry) collided() {
	if r.onCollision != nil {
		r.onCollision()
	}
}

// ValidCode reports whether s has the shape of a minted code.
func ValidCode(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
