package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://valentine.example.com", want: "wss://valentine.example.com"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("VALENTINE_HTTP_ADDR", "")
	t.Setenv("VALENTINE_NOTIFY_DRIVER", "")
	t.Setenv("VALENTINE_DB_SCHEMA", "")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.NotifyDriver != NotifyDriverLog {
		t.Fatalf("NotifyDriver=%q", cfg.NotifyDriver)
	}
	if cfg.DBSchema != "valentine" || cfg.DBAutoMigrate {
		t.Fatalf("db defaults: schema=%q auto=%v", cfg.DBSchema, cfg.DBAutoMigrate)
	}
	if cfg.MaxAttempts != 3 || cfg.OTPTTL != 5*time.Minute {
		t.Fatalf("redeem defaults: attempts=%d otp_ttl=%v", cfg.MaxAttempts, cfg.OTPTTL)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("VALENTINE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("VALENTINE_NOTIFY_DRIVER", "nats")
	t.Setenv("VALENTINE_MAX_ATTEMPTS", "5")
	t.Setenv("VALENTINE_RESEND_WINDOW", "30m")
	t.Setenv("VALENTINE_CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9000" || cfg.NotifyDriver != NotifyDriverNATS {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxAttempts != 5 || cfg.ResendWindow != 30*time.Minute {
		t.Fatalf("attempts=%d window=%v", cfg.MaxAttempts, cfg.ResendWindow)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("cors=%v", cfg.CORSAllowedOrigins)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	key := paseto.NewV4AsymmetricSecretKey().ExportHex()

	cases := []struct {
		name    string
		require bool
		salt    string
		key     string
		wantErr bool
	}{
		{name: "policy off", require: false},
		{name: "missing salt", require: true, key: key, wantErr: true},
		{name: "short salt", require: true, salt: "short", key: key, wantErr: true},
		{name: "missing key", require: true, salt: strings.Repeat("s", 16), wantErr: true},
		{name: "ok", require: true, salt: strings.Repeat("s", 16), key: key},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("VALENTINE_FINGERPRINT_SALT", tc.salt)
			t.Setenv("VALENTINE_PASETO_V4_SECRET_KEY_HEX", tc.key)

			err := ValidateSecurityConfig(Config{RequireSecrets: tc.require})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestNew_InMemoryServesRoutes(t *testing.T) {
	t.Setenv("VALENTINE_PASETO_V4_SECRET_KEY_HEX", "")
	t.Setenv("VALENTINE_FINGERPRINT_SALT", "")
	t.Setenv("VALENTINE_FINGERPRINT_MODE", "")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.NotifyDriver = NotifyDriverLog

	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = a.dispatcher.Close(context.Background())
		a.closeAll()
	})

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, a.dbPool, a.dbEnabled, a.registry, a.api, a.ws)
	ts := httptest.NewServer(WithSecurityHeaders(mux))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}

	body := `{"sender_phone":"0712345678","receiver_phone":"0798765432","message":"hi","activities":["dinner"]}`
	resp, err = http.Post(ts.URL+"/api/valentine/create", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status=%d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(raw), "valentine_created_total 1") {
		t.Fatalf("metrics missing created counter:\n%s", raw)
	}
}
