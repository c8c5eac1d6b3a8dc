package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.ValentineCreated()
	r.ValentineCreated()
	r.Guess(ResultIncorrect)
	r.Guess(ResultIncorrect)
	r.Guess(ResultCorrect)
	r.Notification("OTP", "sent")
	r.ShortCodeCollision()
	r.WatchOpened()
	r.WatchOpened()
	r.WatchClosed()

	if got := testutil.ToFloat64(r.created); got != 2 {
		t.Fatalf("created=%v want=2", got)
	}
	if got := testutil.ToFloat64(r.guesses.WithLabelValues(ResultIncorrect)); got != 2 {
		t.Fatalf("incorrect guesses=%v want=2", got)
	}
	if got := testutil.ToFloat64(r.guesses.WithLabelValues(ResultCorrect)); got != 1 {
		t.Fatalf("correct guesses=%v want=1", got)
	}
	if got := testutil.ToFloat64(r.notifications.WithLabelValues("OTP", "sent")); got != 1 {
		t.Fatalf("notifications=%v want=1", got)
	}
	if got := testutil.ToFloat64(r.collisions); got != 1 {
		t.Fatalf("collisions=%v want=1", got)
	}
	if got := testutil.ToFloat64(r.watchers); got != 1 {
		t.Fatalf("watchers=%v want=1", got)
	}

	n, err := testutil.GatherAndCount(reg, "valentine_guesses_total")
	if err != nil || n != 2 {
		t.Fatalf("GatherAndCount=%d,%v want=2", n, err)
	}
}

func TestRecorder_DoubleRegisterFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.ValentineCreated()
	r.OTPVerification(ResultOK)
	r.OTPResend(ResultRateLimited)
	r.Guess(ResultExhausted)
	r.Response("YES")
	r.LinkValidation(ResultNotFound)
	r.Notification("LINK", "failed")
	r.ShortCodeCollision()
	r.WatchOpened()
	r.WatchClosed()
}
