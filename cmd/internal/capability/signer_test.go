package capability

import (
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	s, err := NewSigner(cfg)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestSignVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t)
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	tok, exp, err := s.Sign(Claims{ValentineID: "01JVALENTINE0000000000000A", TokenID: "tok-1"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !exp.Equal(now.Add(48 * time.Hour)) {
		t.Fatalf("exp=%v want=%v", exp, now.Add(48*time.Hour))
	}

	claims, err := s.Verify(tok, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.ValentineID != "01JVALENTINE0000000000000A" || claims.TokenID != "tok-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "guess-my-valentine" {
		t.Fatalf("issuer=%q", claims.Issuer)
	}
}

func TestSign_CapsAtClaimExpiry(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t)
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	limit := now.Add(2 * time.Hour)

	_, exp, err := s.Sign(Claims{ValentineID: "v", TokenID: "t", ExpiresAt: limit}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !exp.Equal(limit) {
		t.Fatalf("exp=%v want=%v", exp, limit)
	}

	if _, _, err := s.Sign(Claims{ValentineID: "v", TokenID: "t", ExpiresAt: now}, now); err != ErrInvalidClaims {
		t.Fatalf("expected ErrInvalidClaims for past expiry, got %v", err)
	}
}

func TestSign_RequiresClaims(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t)
	if _, _, err := s.Sign(Claims{TokenID: "t"}, time.Now()); err != ErrInvalidClaims {
		t.Fatalf("expected ErrInvalidClaims, got %v", err)
	}
	if _, _, err := s.Sign(Claims{ValentineID: "v"}, time.Now()); err != ErrInvalidClaims {
		t.Fatalf("expected ErrInvalidClaims, got %v", err)
	}
}

func TestVerify_FailuresAreUniform(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t)
	other := newTestSigner(t)
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	tok, exp, err := s.Sign(Claims{ValentineID: "v", TokenID: "t"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	foreign, _, err := other.Sign(Claims{ValentineID: "v", TokenID: "t"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := tok[:len(tok)-2] + flip(tok[len(tok)-2:])

	cases := []struct {
		name  string
		token string
		at    time.Time
	}{
		{name: "empty", token: "", at: now},
		{name: "garbage", token: "v4.public.not-a-token", at: now},
		{name: "tampered", token: tampered, at: now},
		{name: "foreign key", token: foreign, at: now},
		{name: "expired", token: tok, at: exp},
		{name: "long expired", token: tok, at: exp.Add(24 * time.Hour)},
	}

	for _, tc := range cases {
		if _, err := s.Verify(tc.token, tc.at); err != ErrInvalidOrExpired {
			t.Fatalf("%s: expected ErrInvalidOrExpired, got %v", tc.name, err)
		}
	}
}

func TestVerify_ForeignIssuer(t *testing.T) {
	t.Parallel()

	key := paseto.NewV4AsymmetricSecretKey().ExportHex()
	a, err := NewSigner(Config{Issuer: "a", TTL: time.Hour, PasetoV4SecretKeyHex: key})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	b, err := NewSigner(Config{Issuer: "b", TTL: time.Hour, PasetoV4SecretKeyHex: key})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := a.Sign(Claims{ValentineID: "v", TokenID: "t"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := b.Verify(tok, now); err != ErrInvalidOrExpired {
		t.Fatalf("expected ErrInvalidOrExpired for issuer mismatch, got %v", err)
	}
}

func TestVerify_UsesInjectedClock(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t)
	past := time.Date(2020, 2, 14, 12, 0, 0, 0, time.UTC)

	tok, exp, err := s.Sign(Claims{ValentineID: "v", TokenID: "t"}, past)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := s.Verify(tok, past.Add(47*time.Hour)); err != nil {
		t.Fatalf("Verify inside window of a past clock: %v", err)
	}
	if _, err := s.Verify(tok, exp.Add(-time.Nanosecond)); err != nil {
		t.Fatalf("Verify just before expiry: %v", err)
	}
}

func TestVerify_ClockSkewOnlyAffectsIssuance(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.TTL = time.Hour
	cfg.ClockSkew = 30 * time.Second
	s, err := NewSigner(cfg)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	tok, exp, err := s.Sign(Claims{ValentineID: "v", TokenID: "t"}, now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	cases := []struct {
		name string
		at   time.Time
		ok   bool
	}{
		{name: "verifier lags within skew", at: now.Add(-10 * time.Second), ok: true},
		{name: "verifier lags beyond skew", at: now.Add(-time.Minute), ok: false},
		{name: "last instant before expiry", at: exp.Add(-time.Second), ok: true},
		{name: "at expiry", at: exp, ok: false},
	}
	for _, tc := range cases {
		_, err := s.Verify(tok, tc.at)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err != ErrInvalidOrExpired {
			t.Fatalf("%s: expected ErrInvalidOrExpired, got %v", tc.name, err)
		}
	}
}

func TestNewSigner_BadKey(t *testing.T) {
	t.Parallel()

	if _, err := NewSigner(Config{PasetoV4SecretKeyHex: "zz"}); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func flip(s string) string {
	if strings.HasPrefix(s, "A") {
		return "B" + s[1:]
	}
	return "A" + s[1:]
}
