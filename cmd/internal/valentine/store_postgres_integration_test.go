package valentine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/pgtest"
)

func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	pool := pgtest.MustOpenPool(t)
	t.Cleanup(pool.Close)
	schema := pgtest.MustMigratedSchema(t, pool, "valentine_it")

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	t.Parallel()

	st := newPostgresTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	in := testCreateRecord(pgtest.NewULID(t))
	in.Now = now
	in.OTPExpiresAt = now.Add(5 * time.Minute)
	in.LinkExpiresAt = now.Add(DefaultLinkTTL)

	if _, err := st.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := st.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusPending || got.OTPCode == nil || *got.OTPCode != "123456" || len(got.Activities) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := st.ConsumeOTP(ctx, in.ID, "000000", now); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	r, err := st.ConsumeOTP(ctx, in.ID, "123456", now.Add(time.Second))
	if err != nil {
		t.Fatalf("ConsumeOTP: %v", err)
	}
	if !r.OTPVerified || r.OTPCode != nil {
		t.Fatalf("expected verified and cleared otp: %+v", r)
	}

	r, err = st.RecordFailedGuess(ctx, in.ID, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("RecordFailedGuess: %v", err)
	}
	if r.GuessAttempts != 1 || r.Status != StatusPending {
		t.Fatalf("unexpected after guess: attempts=%d status=%s", r.GuessAttempts, r.Status)
	}

	r, err = st.Resolve(ctx, in.ID, ResponseYes, []string{"stargazing"}, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if r.Status != StatusAccepted || len(r.ResponseActivities) != 1 || r.RespondedAt == nil {
		t.Fatalf("unexpected resolved record: %+v", r)
	}

	if _, err := st.Resolve(ctx, in.ID, ResponseNo, nil, now); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if err := st.SetOTP(ctx, in.ID, "111111", now.Add(time.Minute), now); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if _, err := st.RecordFailedGuess(ctx, pgtest.NewULID(t), now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ConcurrentFailedGuesses(t *testing.T) {
	t.Parallel()

	st := newPostgresTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	in := testCreateRecord(pgtest.NewULID(t))
	in.Now = now
	in.OTPExpiresAt = now.Add(5 * time.Minute)
	in.LinkExpiresAt = now.Add(DefaultLinkTTL)
	if _, err := st.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const attempts = 10
	var wg sync.WaitGroup
	wg.Add(attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := st.RecordFailedGuess(ctx, in.ID, time.Now().UTC())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrNotPending) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != DefaultMaxAttempts {
		t.Fatalf("expected %d counted guesses, got %d", DefaultMaxAttempts, success)
	}

	r, err := st.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.GuessAttempts != DefaultMaxAttempts || r.Status != StatusExpired {
		t.Fatalf("attempts=%d status=%s", r.GuessAttempts, r.Status)
	}
}
