package shortcode

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
type InMemoryStore struct {
	mu    sync.Mutex
	codes map[string]Record
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]Record)}
}

func (s *InMemoryStore) Exists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *InMemoryStore) Insert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[r.Code]; ok {
		return ErrCodeTaken
	}
	s.codes[r.Code] = r
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, code string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.codes[code]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemoryStore) MarkUsed(ctx context.Context, code string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.codes[code]
	if !ok || !r.Active(now) {
		return ErrNotFound
	}
	r.Used = true
	s.codes[code] = r
	return nil
}
