// Package migrations applies the embedded Postgres schema.
//
// Files under sql/ run in lexical order. Every statement is idempotent, so
// Apply is safe on every startup. The __SCHEMA__ placeholder is replaced with
// the sanitized target schema.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schemaPlaceholder = "__SCHEMA__"

//go:embed sql/*.sql
var files embed.FS

// ErrInvalidSchema is returned for a blank schema name.
var ErrInvalidSchema = errors.New("invalid schema")

// Execer is the subset of pgxpool.Pool used here.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Files returns the migration file names in apply order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(files, "sql")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Render returns the SQL of one migration for schema.
func Render(name, schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return "", ErrInvalidSchema
	}
	raw, err := files.ReadFile("sql/" + name)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(raw), schemaPlaceholder, pgx.Identifier{schema}.Sanitize()), nil
}

// Apply runs every migration against db inside schema.
func Apply(ctx context.Context, db Execer, schema string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	names, err := Files()
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	for _, name := range names {
		stmt, err := Render(name, schema)
		if err != nil {
			return fmt.Errorf("render migration %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		log.Info("db.migration.applied", "file", name, "schema", schema)
	}
	return nil
}
