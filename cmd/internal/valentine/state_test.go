package valentine

import (
	"testing"
	"time"
)

func pendingRecord(max int) Record {
	return Record{ID: "01JTESTVALENTINE0000000000", Status: StatusPending, MaxAttempts: max}
}

func TestApplyFailedGuess_ExpiresAtBudget(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	r := pendingRecord(3)

	wantRemaining := []int{2, 1, 0}
	for i, want := range wantRemaining {
		var err error
		r, err = ApplyFailedGuess(r, now)
		if err != nil {
			t.Fatalf("guess %d: %v", i+1, err)
		}
		if r.RemainingAttempts() != want {
			t.Fatalf("guess %d: remaining=%d want=%d", i+1, r.RemainingAttempts(), want)
		}
	}
	if r.Status != StatusExpired {
		t.Fatalf("status=%s want=EXPIRED", r.Status)
	}
	if r.GuessAttempts != 3 {
		t.Fatalf("attempts=%d want=3", r.GuessAttempts)
	}

	if _, err := ApplyFailedGuess(r, now); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending after expiry, got %v", err)
	}
}

func TestApplyResponse(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)

	yes, err := ApplyResponse(pendingRecord(3), ResponseYes, []string{"dinner", "movie"}, now)
	if err != nil {
		t.Fatalf("ApplyResponse(YES): %v", err)
	}
	if yes.Status != StatusAccepted || len(yes.ResponseActivities) != 2 || yes.RespondedAt == nil {
		t.Fatalf("unexpected YES record: %+v", yes)
	}

	no, err := ApplyResponse(pendingRecord(3), ResponseNo, []string{"dinner"}, now)
	if err != nil {
		t.Fatalf("ApplyResponse(NO): %v", err)
	}
	if no.Status != StatusDeclined || len(no.ResponseActivities) != 0 {
		t.Fatalf("unexpected NO record: %+v", no)
	}

	for _, terminal := range []Status{StatusAccepted, StatusDeclined, StatusExpired} {
		r := pendingRecord(3)
		r.Status = terminal
		if _, err := ApplyResponse(r, ResponseYes, nil, now); err != ErrNotPending {
			t.Fatalf("status %s: expected ErrNotPending, got %v", terminal, err)
		}
		if _, err := ApplyOTP(r, "123456", now, now); err != ErrNotPending {
			t.Fatalf("status %s: expected ErrNotPending for otp, got %v", terminal, err)
		}
	}
}

func TestStatusAndResponse(t *testing.T) {
	t.Parallel()

	if StatusPending.Terminal() {
		t.Fatalf("PENDING must not be terminal")
	}
	for _, s := range []Status{StatusAccepted, StatusDeclined, StatusExpired} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	if Status("REVEALED").Valid() {
		t.Fatalf("unknown status must be invalid")
	}

	cases := map[string]Response{"yes": ResponseYes, " NO ": ResponseNo}
	for in, want := range cases {
		got, ok := ParseResponse(in)
		if !ok || got != want {
			t.Fatalf("ParseResponse(%q)=%q,%v", in, got, ok)
		}
	}
	if _, ok := ParseResponse("maybe"); ok {
		t.Fatalf("expected maybe to be rejected")
	}
}

func TestRedeemable(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	r := pendingRecord(3)
	r.LinkExpiresAt = now.Add(time.Hour)
	if !r.Redeemable(now) {
		t.Fatalf("expected redeemable")
	}
	if r.Redeemable(now.Add(time.Hour)) {
		t.Fatalf("expected link expiry to stop redemption")
	}
	r.Status = StatusDeclined
	if r.Redeemable(now) {
		t.Fatalf("expected terminal record to be unredeemable")
	}
}

func TestValidatePayload(t *testing.T) {
	t.Parallel()

	many := make([]string, MaxActivities+1)
	for i := range many {
		many[i] = "coffee"
	}
	if err := ValidatePayload("hi", many); err != ErrInvalidInput {
		t.Fatalf("expected too many activities to fail, got %v", err)
	}
	if err := ValidatePayload("hi", []string{" "}); err != ErrInvalidInput {
		t.Fatalf("expected blank activity to fail, got %v", err)
	}
	if err := ValidatePayload("hi", []string{"sunset", "picnic"}); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
