// Package ledger tracks capability token ids and their single-use flag.
//
// A token is usable while it exists, is unused and is unexpired. The used
// flag flips exactly once, through a conditional update, when the receiver
// responds.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("token not found")
	ErrNotUsable    = errors.New("token not usable")
	ErrDuplicate    = errors.New("token already recorded")
)

// Token is one ledger row.
type Token struct {
	TokenID     string
	ValentineID string
	Used        bool
	UsedAt      *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Usable reports whether the token may authorize a redemption at now.
func (t Token) Usable(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// Store is the persistence boundary for tokens.
type Store interface {
	Insert(ctx context.Context, t Token) error
	Get(ctx context.Context, tokenID string) (Token, error)
	// MarkUsed flips used=false -> true for an unexpired token.
	MarkUsed(ctx context.Context, tokenID string, now time.Time) (Token, error)
}

// Ledger is the service facade used by the redemption flow.
type Ledger struct {
	store Store
}

// New constructs a Ledger.
func New(store Store) (*Ledger, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	return &Ledger{store: store}, nil
}

// RecordIssued stores a freshly minted token id.
func (l *Ledger) RecordIssued(ctx context.Context, tokenID, valentineID string, expiresAt, now time.Time) (Token, error) {
	if strings.TrimSpace(tokenID) == "" || strings.TrimSpace(valentineID) == "" || !expiresAt.After(now) {
		return Token{}, ErrInvalidInput
	}
	t := Token{
		TokenID:     tokenID,
		ValentineID: valentineID,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := l.store.Insert(ctx, t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Lookup returns the token if it is usable at now.
// Missing, used and expired tokens are all ErrNotUsable.
func (l *Ledger) Lookup(ctx context.Context, tokenID string, now time.Time) (Token, error) {
	t, err := l.store.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrNotUsable
		}
		return Token{}, err
	}
	if !t.Usable(now) {
		return Token{}, ErrNotUsable
	}
	return t, nil
}

// IsUsable reports whether tokenID exists, is unused and is unexpired.
func (l *Ledger) IsUsable(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	_, err := l.Lookup(ctx, tokenID, now)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotUsable):
		return false, nil
	default:
		return false, err
	}
}

// MarkUsed consumes the token. A second call returns ErrNotUsable.
func (l *Ledger) MarkUsed(ctx context.Context, tokenID string, now time.Time) (Token, error) {
	t, err := l.store.MarkUsed(ctx, tokenID, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Token{}, ErrNotUsable
		}
		return Token{}, err
	}
	return t, nil
}
