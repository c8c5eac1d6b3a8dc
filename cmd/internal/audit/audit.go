// Package audit records security-relevant redemption events.
//
// Events never carry phone numbers, OTP codes, short codes or capabilities;
// only the valentine id, the client address and a small metadata object.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Actions.
const (
	ActionCreated          = "valentine.created"
	ActionOTPVerified      = "otp.verified"
	ActionOTPFailed        = "otp.failed"
	ActionOTPResent        = "otp.resent"
	ActionOTPResendLimited = "otp.resend.rate_limited"
	ActionGuessCorrect     = "guess.correct"
	ActionGuessIncorrect   = "guess.incorrect"
	ActionLinkRejected     = "link.rejected"
	ActionResponded        = "link.responded"
	ActionRateLimited      = "request.rate_limited"
)

// ErrInvalidSchema is returned for a blank schema name.
var ErrInvalidSchema = errors.New("audit: invalid schema")

// Event is one audit entry.
type Event struct {
	Action      string
	ValentineID string
	IP          net.IP
	UserAgent   string
	Meta        map[string]any
	At          time.Time
}

// Recorder stores audit events. Implementations log their own failures;
// auditing never fails a request.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// LogRecorder writes events to the structured log.
type LogRecorder struct {
	log *slog.Logger
}

// NewLogRecorder constructs a LogRecorder.
func NewLogRecorder(log *slog.Logger) *LogRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, ev Event) {
	ev, ok := normalize(ev)
	if !ok {
		return
	}
	attrs := []slog.Attr{slog.String("action", ev.Action)}
	if ev.ValentineID != "" {
		attrs = append(attrs, slog.String("valentine_id", ev.ValentineID))
	}
	if ev.IP != nil {
		attrs = append(attrs, slog.String("ip", ev.IP.String()))
	}
	if len(ev.Meta) > 0 {
		attrs = append(attrs, slog.Any("meta", ev.Meta))
	}
	r.log.LogAttrs(ctx, slog.LevelInfo, "audit.event", attrs...)
}

// Execer is the subset of pgxpool.Pool used by PostgresRecorder.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRecorder inserts events into <schema>.audit_log.
type PostgresRecorder struct {
	db    Execer
	table string
	log   *slog.Logger
}

// NewPostgresRecorder constructs a PostgresRecorder.
func NewPostgresRecorder(db Execer, schema string, log *slog.Logger) (*PostgresRecorder, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil, ErrInvalidSchema
	}
	if db == nil {
		return nil, errors.New("audit: nil db")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresRecorder{
		db:    db,
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
		log:   log,
	}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, ev Event) {
	ev, ok := normalize(ev)
	if !ok {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	var metaVal *string
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			s := string(b)
			metaVal = &s
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO `+r.table+` (action, valentine_id, ip, user_agent, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		ev.Action, nilIfEmpty(ev.ValentineID), ipVal, nilIfEmpty(ev.UserAgent), metaVal, ev.At,
	)
	if err != nil {
		r.log.ErrorContext(ctx, "audit.insert.fail", "err", err, "action", ev.Action)
	}
}

const maxUserAgent = 256

func normalize(ev Event) (Event, bool) {
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		return ev, false
	}
	ev.ValentineID = strings.TrimSpace(ev.ValentineID)
	ev.UserAgent = strings.TrimSpace(ev.UserAgent)
	if len(ev.UserAgent) > maxUserAgent {
		ev.UserAgent = ev.UserAgent[:maxUserAgent]
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	ev.At = ev.At.UTC()
	return ev, true
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
