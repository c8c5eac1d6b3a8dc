package otp

import (
	"testing"
	"time"
)

func TestIssue_RangeAndExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	iss := NewIssuer(0)

	for i := 0; i < 500; i++ {
		c, err := iss.Issue(now)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !WellFormed(c.Value) {
			t.Fatalf("issued malformed code %q", c.Value)
		}
		if !c.ExpiresAt.Equal(now.Add(DefaultTTL)) {
			t.Fatalf("expires_at=%v want=%v", c.ExpiresAt, now.Add(DefaultTTL))
		}
	}
}

func TestMatches(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)
	code := "482913"
	exp := now.Add(5 * time.Minute)

	cases := []struct {
		name      string
		stored    *string
		exp       *time.Time
		presented string
		at        time.Time
		want      bool
	}{
		{name: "match", stored: &code, exp: &exp, presented: "482913", at: now, want: true},
		{name: "match trimmed", stored: &code, exp: &exp, presented: " 482913 ", at: now, want: true},
		{name: "mismatch", stored: &code, exp: &exp, presented: "482914", at: now},
		{name: "expired at boundary", stored: &code, exp: &exp, presented: "482913", at: exp},
		{name: "expired after", stored: &code, exp: &exp, presented: "482913", at: exp.Add(time.Second)},
		{name: "cleared", stored: nil, exp: nil, presented: "482913", at: now},
		{name: "wrong length", stored: &code, exp: &exp, presented: "48291", at: now},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Matches(tc.stored, tc.exp, tc.presented, tc.at); got != tc.want {
				t.Fatalf("Matches()=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestWellFormed(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"100000":  true,
		"999999":  true,
		"012345":  false,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"":        false,
	}
	for in, want := range cases {
		if got := WellFormed(in); got != want {
			t.Fatalf("WellFormed(%q)=%v want=%v", in, got, want)
		}
	}
}
