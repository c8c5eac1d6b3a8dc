package migrations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExecer struct {
	stmts []string
	fail  bool
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if r.fail {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	r.stmts = append(r.stmts, sql)
	return pgconn.NewCommandTag("CREATE"), nil
}

func TestRender_ReplacesSchema(t *testing.T) {
	t.Parallel()

	names, err := Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("expected at least one migration")
	}

	sql, err := Render(names[0], "valentine_test")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(sql, schemaPlaceholder) {
		t.Fatalf("placeholder left in rendered SQL")
	}
	if !strings.Contains(sql, `"valentine_test".valentines`) {
		t.Fatalf("expected schema-qualified table in SQL")
	}

	if _, err := Render(names[0], " "); err != ErrInvalidSchema {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestApply_ExecutesInOrder(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ex := &recordingExecer{}
	if err := Apply(context.Background(), ex, "valentine", log); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	names, _ := Files()
	if len(ex.stmts) != len(names) {
		t.Fatalf("executed %d statements, want %d", len(ex.stmts), len(names))
	}

	if err := Apply(context.Background(), &recordingExecer{fail: true}, "valentine", log); err == nil {
		t.Fatalf("expected error from failing execer")
	}
}
