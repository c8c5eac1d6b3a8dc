package audit

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/pgtest"
)

func TestPostgresRecorder_PersistsEvents(t *testing.T) {
	t.Parallel()

	pool := pgtest.MustOpenPool(t)
	defer pool.Close()
	schema := pgtest.MustMigratedSchema(t, pool, "audit_it")

	rec, err := NewPostgresRecorder(pool, schema, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewPostgresRecorder: %v", err)
	}

	ctx := context.Background()
	id := pgtest.NewULID(t)
	rec.Record(ctx, Event{Action: ActionOTPFailed, ValentineID: id, IP: net.ParseIP("192.0.2.1"), At: time.Now()})
	rec.Record(ctx, Event{Action: ActionOTPVerified, ValentineID: id, Meta: map[string]any{"resends": 1}})

	var n int
	var lastIP *string
	table := pgx.Identifier{schema, "audit_log"}.Sanitize()
	if err := pool.QueryRow(ctx,
		`SELECT count(*), max(host(ip)) FROM `+table+` WHERE valentine_id = $1`, id,
	).Scan(&n, &lastIP); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows=%d want 2", n)
	}
	if lastIP == nil || *lastIP != "192.0.2.1" {
		t.Fatalf("ip=%v", lastIP)
	}
}
