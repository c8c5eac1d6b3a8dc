package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(NewInMemoryStore())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestLedger_IssueUseOnce(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.RecordIssued(ctx, "tok-1", "val-1", testNow.Add(48*time.Hour), testNow); err != nil {
		t.Fatalf("RecordIssued: %v", err)
	}
	if _, err := l.RecordIssued(ctx, "tok-1", "val-1", testNow.Add(48*time.Hour), testNow); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	ok, err := l.IsUsable(ctx, "tok-1", testNow)
	if err != nil || !ok {
		t.Fatalf("IsUsable()=%v,%v want true", ok, err)
	}

	used, err := l.MarkUsed(ctx, "tok-1", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if !used.Used || used.UsedAt == nil {
		t.Fatalf("expected used token: %+v", used)
	}

	if _, err := l.MarkUsed(ctx, "tok-1", testNow.Add(time.Minute)); !errors.Is(err, ErrNotUsable) {
		t.Fatalf("expected ErrNotUsable on second use, got %v", err)
	}
	ok, err = l.IsUsable(ctx, "tok-1", testNow)
	if err != nil || ok {
		t.Fatalf("IsUsable() after use=%v,%v want false", ok, err)
	}
}

func TestLedger_ExpiryAndMissing(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()

	exp := testNow.Add(time.Hour)
	if _, err := l.RecordIssued(ctx, "tok-2", "val-2", exp, testNow); err != nil {
		t.Fatalf("RecordIssued: %v", err)
	}

	if ok, _ := l.IsUsable(ctx, "tok-2", exp); ok {
		t.Fatalf("expected token unusable at expiry")
	}
	if _, err := l.MarkUsed(ctx, "tok-2", exp); !errors.Is(err, ErrNotUsable) {
		t.Fatalf("expected ErrNotUsable after expiry, got %v", err)
	}
	if ok, _ := l.IsUsable(ctx, "missing", testNow); ok {
		t.Fatalf("expected missing token unusable")
	}
	if _, err := l.MarkUsed(ctx, "missing", testNow); !errors.Is(err, ErrNotUsable) {
		t.Fatalf("expected ErrNotUsable for missing token, got %v", err)
	}
	if _, err := l.RecordIssued(ctx, "tok-3", "val-3", testNow, testNow); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for past expiry, got %v", err)
	}
}

func TestLedger_ConcurrentMarkUsedSingleWinner(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.RecordIssued(ctx, "tok-c", "val-c", testNow.Add(time.Hour), testNow); err != nil {
		t.Fatalf("RecordIssued: %v", err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := l.MarkUsed(ctx, "tok-c", testNow); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}
