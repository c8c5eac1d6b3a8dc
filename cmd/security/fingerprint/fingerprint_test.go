package fingerprint

import (
	"regexp"
	"testing"
)

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func testArgonParams() Argon2idParams {
	return Argon2idParams{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32}
}

func TestFingerprint_DeterministicHex(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		h    *Hasher
	}{
		{name: "hmac", h: New([]byte("0123456789abcdef-salt"))},
		{name: "argon2id", h: New([]byte("0123456789abcdef-salt"), WithMode(ModeArgon2id), WithArgon2idParams(testArgonParams()))},
		{name: "unsalted", h: New(nil)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := tc.h.Fingerprint("+254712345678")
			b := tc.h.Fingerprint("+254712345678")
			if a != b {
				t.Fatalf("fingerprint not deterministic: %q vs %q", a, b)
			}
			if !hex64.MatchString(a) {
				t.Fatalf("fingerprint %q is not 64 lowercase hex chars", a)
			}
			if c := tc.h.Fingerprint("+254712345679"); c == a {
				t.Fatalf("distinct inputs produced the same fingerprint")
			}
		})
	}
}

func TestFingerprint_SaltAndModeChangeDigest(t *testing.T) {
	t.Parallel()

	phone := "+254712345678"
	a := New([]byte("salt-one-0123456789")).Fingerprint(phone)
	b := New([]byte("salt-two-0123456789")).Fingerprint(phone)
	if a == b {
		t.Fatalf("different salts produced the same fingerprint")
	}

	c := New([]byte("salt-one-0123456789"), WithMode(ModeArgon2id), WithArgon2idParams(testArgonParams())).Fingerprint(phone)
	if a == c {
		t.Fatalf("hmac and argon2id produced the same fingerprint")
	}
}

func TestWithArgon2idParams_KeepsDigestLength(t *testing.T) {
	t.Parallel()

	for _, keyLen := range []uint32{16, 31, 33, 64} {
		p := testArgonParams()
		p.KeyLength = keyLen
		h := New([]byte("0123456789abcdef-salt"), WithMode(ModeArgon2id), WithArgon2idParams(p))
		if got := h.Fingerprint("+254712345678"); !hex64.MatchString(got) {
			t.Fatalf("KeyLength=%d: fingerprint %q is not 64 hex chars", keyLen, got)
		}
	}
}

func TestFingerprint_HMACMatchesHelper(t *testing.T) {
	t.Parallel()

	salt := []byte("0123456789abcdef")
	got := New(salt).Fingerprint("+15550001111")
	want := HashHMACSHA256Hex("+15550001111", salt)
	if got != want {
		t.Fatalf("Fingerprint()=%q want=%q", got, want)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	h := New([]byte("0123456789abcdef"))
	a := h.Fingerprint("+254700000001")
	if !Equal(a, h.Fingerprint("+254700000001")) {
		t.Fatalf("expected equal fingerprints")
	}
	if Equal(a, h.Fingerprint("+254700000002")) {
		t.Fatalf("expected different fingerprints")
	}
	if Equal(a, "") {
		t.Fatalf("expected mismatch against empty")
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeHMAC},
		{in: "HMAC", want: ModeHMAC},
		{in: " argon2id ", want: ModeArgon2id},
		{in: "bcrypt", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err != ErrUnknownMode {
				t.Fatalf("ParseMode(%q) err=%v want ErrUnknownMode", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseMode(%q)=%q,%v want=%q", tc.in, got, err, tc.want)
		}
	}
}

func TestSaltFromEnv(t *testing.T) {
	t.Setenv(SaltEnvKey, "")
	if _, err := SaltFromEnv(MinSaltBytes); err != ErrSaltMissing {
		t.Fatalf("expected ErrSaltMissing, got %v", err)
	}

	t.Setenv(SaltEnvKey, "short")
	if _, err := SaltFromEnv(MinSaltBytes); err != ErrSaltTooShort {
		t.Fatalf("expected ErrSaltTooShort, got %v", err)
	}

	t.Setenv(SaltEnvKey, "  a-long-enough-salt-value  ")
	b, err := SaltFromEnv(MinSaltBytes)
	if err != nil {
		t.Fatalf("SaltFromEnv: %v", err)
	}
	if string(b) != "a-long-enough-salt-value" {
		t.Fatalf("expected trimmed salt, got %q", b)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(SaltEnvKey, "a-long-enough-salt-value")
	t.Setenv(ModeEnvKey, "argon2id")

	h, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !h.Salted() || h.Mode() != ModeArgon2id {
		t.Fatalf("unexpected hasher: salted=%v mode=%q", h.Salted(), h.Mode())
	}

	t.Setenv(ModeEnvKey, "md5")
	if _, err := FromEnv(); err != ErrUnknownMode {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
