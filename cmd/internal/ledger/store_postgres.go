package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore persists tokens in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

// WithSchema sets the DB schema used by the store (default: "valentine").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "valentine"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, ErrInvalidInput
	}
	return st, nil
}

func (s *PostgresStore) Insert(ctx context.Context, t Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (token_id, valentine_id, used, used_at, expires_at, created_at)
		 VALUES ($1, $2, false, NULL, $3, $4)`,
		t.TokenID, t.ValentineID, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tokenID string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	t, err := scanToken(s.pool.QueryRow(ctx,
		`SELECT token_id, valentine_id, used, used_at, expires_at, created_at
		   FROM `+s.table()+`
		  WHERE token_id = $1`,
		tokenID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Token{}, ErrNotFound
		}
		return Token{}, err
	}
	return t, nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, tokenID string, now time.Time) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Token{}, err
	}
	t, err := scanToken(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET used = true,
		        used_at = $2
		  WHERE token_id = $1
		    AND used = false
		    AND expires_at > $2
		RETURNING token_id, valentine_id, used, used_at, expires_at, created_at`,
		tokenID, now,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Token{}, err
	}

	// Distinguish not-found vs not-usable.
	if _, selErr := s.Get(ctx, tokenID); selErr != nil {
		return Token{}, selErr
	}
	return Token{}, ErrNotUsable
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "capability_tokens"}.Sanitize()
}

func scanToken(row pgx.Row) (Token, error) {
	var t Token
	err := row.Scan(&t.TokenID, &t.ValentineID, &t.Used, &t.UsedAt, &t.ExpiresAt, &t.CreatedAt)
	return t, err
}
