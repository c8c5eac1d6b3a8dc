package valentine

import (
	"context"
	"sync"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/security/otp"
)

// InMemoryStore is a dev-only fallback when DB is not configured.
// Records are copied on the way in and out so callers never share state.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewInMemoryStore constructs an in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Create(ctx context.Context, in CreateRecord) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := in.Validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[in.ID]; exists {
		return Record{}, ErrInvalidInput
	}
	r := newRecord(in)
	s.records[r.ID] = r
	return clone(r), nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemoryStore) SetOTP(ctx context.Context, id, code string, expiresAt, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if code == "" || expiresAt.IsZero() {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	next, err := ApplyOTP(r, code, expiresAt, now)
	if err != nil {
		return err
	}
	s.records[id] = next
	return nil
}

func (s *InMemoryStore) ConsumeOTP(ctx context.Context, id, code string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Status != StatusPending || !otp.Matches(r.OTPCode, r.OTPExpiresAt, code, now) {
		return Record{}, ErrInvalidCode
	}
	r = ApplyOTPVerified(r, now)
	s.records[id] = r
	return clone(r), nil
}

func (s *InMemoryStore) RecordFailedGuess(ctx context.Context, id string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	next, err := ApplyFailedGuess(r, now)
	if err != nil {
		return Record{}, err
	}
	s.records[id] = next
	return clone(next), nil
}

func (s *InMemoryStore) Resolve(ctx context.Context, id string, resp Response, activities []string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if resp != ResponseYes && resp != ResponseNo {
		return Record{}, ErrInvalidInput
	}
	if err := ValidateActivities(activities); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	next, err := ApplyResponse(r, resp, activities, now)
	if err != nil {
		return Record{}, err
	}
	s.records[id] = next
	return clone(next), nil
}

func clone(r Record) Record {
	r.Activities = cloneStrings(r.Activities)
	r.ResponseActivities = cloneStrings(r.ResponseActivities)
	if r.OTPCode != nil {
		c := *r.OTPCode
		r.OTPCode = &c
	}
	if r.OTPExpiresAt != nil {
		e := *r.OTPExpiresAt
		r.OTPExpiresAt = &e
	}
	if r.RespondedAt != nil {
		a := *r.RespondedAt
		r.RespondedAt = &a
	}
	return r
}
