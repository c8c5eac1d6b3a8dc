// Package pgtest holds helpers for Postgres integration tests.
//
// Integration tests are enabled when VALENTINE_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.
package pgtest

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// EnvKey names the env var holding the integration database URL.
const EnvKey = "VALENTINE_DATABASE_URL"

// MustOpenPool connects to the integration database or skips the test.
func MustOpenPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvKey))
	if raw == "" {
		t.Skip("integration test skipped: " + EnvKey + " is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvKey, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable (%s set): %v", EnvKey, err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

// MustMigratedSchema creates a throwaway schema, applies migrations and drops it on cleanup.
func MustMigratedSchema(t *testing.T, pool *pgxpool.Pool, prefix string) string {
	t.Helper()

	schema := prefix + "_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now().UTC()), rand.Reader).String())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	t.Cleanup(func() {
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = pool.Exec(dropCtx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := migrations.Apply(ctx, pool, schema, log); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return schema
}

// MustInsertValentine inserts a minimal PENDING valentine row for tests of dependent tables.
func MustInsertValentine(t *testing.T, pool *pgxpool.Pool, schema, id string, linkExpiresAt time.Time) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fp := strings.Repeat("a", 64)
	table := pgx.Identifier{schema, "valentines"}.Sanitize()
	if _, err := pool.Exec(ctx,
		`INSERT INTO `+table+` (id, sender_fingerprint, receiver_fingerprint, sender_phone, receiver_phone, link_expires_at)
		 VALUES ($1, $2, $2, '+254700000001', '+254700000002', $3)`,
		id, fp, linkExpiresAt,
	); err != nil {
		t.Fatalf("insert valentine: %v", err)
	}
}

// NewULID returns a fresh ULID string.
func NewULID(t *testing.T) string {
	t.Helper()
	id := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), ulid.Monotonic(rand.Reader, 0)).String()
	if len(id) != 26 {
		t.Fatalf("expected ULID length 26, got %d", len(id))
	}
	return id
}

func shouldSkip(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
