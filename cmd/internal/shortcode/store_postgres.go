package shortcode

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

// PostgresStore persists short codes in PostgreSQL.
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

func (s *PostgresStore) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table()+` WHERE code = $1)`,
		code,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) Insert(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (code, capability, token_id, valentine_id, used, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, false, $5, $6)`,
		r.Code, r.Capability, r.TokenID, r.ValentineID, r.ExpiresAt, r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, code string) (Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx,
		`SELECT code, capability, token_id, valentine_id, used, expires_at, created_at
		   FROM `+s.table()+`
		  WHERE code = $1`,
		code,
	).Scan(&r.Code, &r.Capability, &r.TokenID, &r.ValentineID, &r.Used, &r.ExpiresAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return r, nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, code string, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET used = true
		  WHERE code = $1
		    AND used = false
		    AND expires_at > $2`,
		code, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "short_codes"}.Sanitize()
}
