package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("component", "api").Info("http.request",
		"method", "post",
		"status", 429,
		"status_class", "4xx",
		"duration_ms", int64(12),
		"note", "two words",
	)

	out := buf.String()
	for _, want := range []string{
		"lvl=[INFO]",
		"msg=http.request",
		"component=api",
		"method=POST",
		"status=429",
		"class=4xx",
		"duration=12ms",
		`note="two words"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain output must not contain ANSI escapes: %q", out)
	}
}

func TestPrettyHandler_LevelFilterAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false))

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}

	log.WithGroup("redeem").Warn("guess.fail", slog.Group("link", "valid", false))
	if got := buf.String(); !strings.Contains(got, "redeem.link.valid=false") {
		t.Fatalf("grouped key missing: %q", got)
	}
}

func TestPrettyHandler_ColorTags(t *testing.T) {
	t.Parallel()

	if got := levelTag(slog.LevelError, true); got != ansiRed+"[ERROR]"+ansiReset {
		t.Fatalf("levelTag(error)=%q", got)
	}
	if got := colorizeStatusCode(503, true); got != ansiRed+"503"+ansiReset {
		t.Fatalf("colorizeStatusCode(503)=%q", got)
	}
	if got := colorizeResult("correct", false); got != "correct" {
		t.Fatalf("colorizeResult without color=%q", got)
	}
}

func TestValueToInt64(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   slog.Value
		want int64
		ok   bool
	}{
		{in: slog.Int64Value(7), want: 7, ok: true},
		{in: slog.Uint64Value(9), want: 9, ok: true},
		{in: slog.StringValue(" 42 "), want: 42, ok: true},
		{in: slog.StringValue("nope"), ok: false},
		{in: slog.BoolValue(true), ok: false},
	}
	for _, tc := range cases {
		got, ok := valueToInt64(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("valueToInt64(%v)=(%d,%v) want (%d,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
