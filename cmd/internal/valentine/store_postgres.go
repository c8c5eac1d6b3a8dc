package valentine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, sender_fingerprint, receiver_fingerprint, sender_phone, receiver_phone,
		       message, activities, status, guess_attempts, max_attempts,
		       otp_code, otp_expires_at, otp_verified, link_expires_at,
		       response_activities, responded_at, created_at, updated_at`

// PostgresStore persists valentine records in PostgreSQL.
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

// Create inserts a new PENDING record.
func (s *PostgresStore) Create(ctx context.Context, in CreateRecord) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := in.Validate(); err != nil {
		return Record{}, err
	}
	r := newRecord(in)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, sender_fingerprint, receiver_fingerprint, sender_phone, receiver_phone,
		     message, activities, status, guess_attempts, max_attempts,
		     otp_code, otp_expires_at, otp_verified, link_expires_at,
		     response_activities, responded_at, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, false, $12, '{}', NULL, $13, $13)`,
		r.ID,
		r.SenderFingerprint,
		r.ReceiverFingerprint,
		r.SenderPhone,
		r.ReceiverPhone,
		r.Message,
		r.Activities,
		string(r.Status),
		r.MaxAttempts,
		r.OTPCode,
		r.OTPExpiresAt,
		r.LinkExpiresAt,
		r.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// Get fetches a record by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrNotFound
	}

	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+`
		   FROM `+s.table()+`
		  WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return r, nil
}

// SetOTP overwrites the code on a PENDING record.
func (s *PostgresStore) SetOTP(ctx context.Context, id, code string, expiresAt, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if code == "" || expiresAt.IsZero() {
		return ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET otp_code = $2,
		        otp_expires_at = $3,
		        updated_at = $4
		  WHERE id = $1
		    AND status = 'PENDING'`,
		id, code, expiresAt, now,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.notApplied(ctx, id)
}

// ConsumeOTP clears a matching, unexpired code in one statement.
func (s *PostgresStore) ConsumeOTP(ctx context.Context, id, code string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	code = strings.TrimSpace(code)
	if id == "" || code == "" {
		return Record{}, ErrInvalidCode
	}

	r, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET otp_code = NULL,
		        otp_expires_at = NULL,
		        otp_verified = true,
		        updated_at = $3
		  WHERE id = $1
		    AND status = 'PENDING'
		    AND otp_code = $2
		    AND otp_expires_at > $3
		RETURNING `+recordColumns,
		id, code, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrInvalidCode
		}
		return Record{}, err
	}
	return r, nil
}

// RecordFailedGuess increments attempts and flips to EXPIRED at the budget.
// The status guard stops concurrent wrong guesses once the record expires.
func (s *PostgresStore) RecordFailedGuess(ctx context.Context, id string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	r, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET guess_attempts = guess_attempts + 1,
		        status = CASE WHEN guess_attempts + 1 >= max_attempts THEN 'EXPIRED' ELSE status END,
		        updated_at = $2
		  WHERE id = $1
		    AND status = 'PENDING'
		RETURNING `+recordColumns,
		id, now,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}
	return Record{}, s.notApplied(ctx, id)
}

// Resolve moves a PENDING record to its terminal response status.
func (s *PostgresStore) Resolve(ctx context.Context, id string, resp Response, activities []string, now time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if resp != ResponseYes && resp != ResponseNo {
		return Record{}, ErrInvalidInput
	}
	if err := ValidateActivities(activities); err != nil {
		return Record{}, err
	}
	chosen := cloneStrings(activities)
	if resp == ResponseNo {
		chosen = []string{}
	}

	r, err := scanRecord(s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET status = $2,
		        response_activities = $3,
		        responded_at = $4,
		        updated_at = $4
		  WHERE id = $1
		    AND status = 'PENDING'
		RETURNING `+recordColumns,
		id, string(resp.Status()), chosen, now,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}
	return Record{}, s.notApplied(ctx, id)
}

// notApplied distinguishes not-found vs not-pending after a conditional update matched nothing.
func (s *PostgresStore) notApplied(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

func (s *PostgresStore) table() string {
	return pgIdent(s.schema, "valentines")
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r      Record
		status string
	)
	err := row.Scan(
		&r.ID,
		&r.SenderFingerprint,
		&r.ReceiverFingerprint,
		&r.SenderPhone,
		&r.ReceiverPhone,
		&r.Message,
		&r.Activities,
		&status,
		&r.GuessAttempts,
		&r.MaxAttempts,
		&r.OTPCode,
		&r.OTPExpiresAt,
		&r.OTPVerified,
		&r.LinkExpiresAt,
		&r.ResponseActivities,
		&r.RespondedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	r.Status = Status(status)
	if r.Activities == nil {
		r.Activities = []string{}
	}
	if r.ResponseActivities == nil {
		r.ResponseActivities = []string{}
	}
	return r, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
