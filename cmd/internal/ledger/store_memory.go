package ledger

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
type InMemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]Token)}
}

func (s *InMemoryStore) Insert(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.TokenID]; exists {
		return ErrDuplicate
	}
	s.tokens[t.TokenID] = t
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, tokenID string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}

func (s *InMemoryStore) MarkUsed(ctx context.Context, tokenID string, now time.Time) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return Token{}, ErrNotFound
	}
	if !t.Usable(now) {
		return Token{}, ErrNotUsable
	}
	at := now
	t.Used, t.UsedAt = true, &at
	s.tokens[tokenID] = t
	return t, nil
}
