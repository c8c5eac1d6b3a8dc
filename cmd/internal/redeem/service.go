// Package redeem orchestrates the valentine flow across the record store,
// token ledger, short-code registry and capability signer.
//
// The Service holds no per-valentine state. Every cross-store write goes
// through it, and every link-facing failure collapses into
// ErrInvalidOrExpired so callers cannot probe which check failed.
package redeem

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rodweleo/guess-my-valentine/cmd/internal/capability"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/ledger"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/metrics"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/notify"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/shortcode"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/throttle"
	"github.com/rodweleo/guess-my-valentine/cmd/internal/valentine"
	"github.com/rodweleo/guess-my-valentine/cmd/security/fingerprint"
	"github.com/rodweleo/guess-my-valentine/cmd/security/otp"
	"github.com/rodweleo/guess-my-valentine/cmd/security/phone"
)

// Config holds orchestration policy.
type Config struct {
	// PublicBaseURL prefixes short links sent to receivers ("<base>/v/<code>").
	PublicBaseURL string

	// Channel is the delivery medium requested for every notification.
	Channel notify.Channel

	MaxAttempts int
	LinkTTL     time.Duration

	ResendMax    int
	ResendWindow time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		PublicBaseURL: "http://localhost:3000",
		Channel:       notify.ChannelWhatsApp,
		MaxAttempts:   valentine.DefaultMaxAttempts,
		LinkTTL:       valentine.DefaultLinkTTL,
		ResendMax:     3,
		ResendWindow:  10 * time.Minute,
	}
}

// Deps are the required collaborators.
type Deps struct {
	Valentines valentine.Store
	Ledger     *ledger.Ledger
	Codes      *shortcode.Registry
	Signer     *capability.Signer
	OTP        *otp.Issuer
	Hasher     *fingerprint.Hasher
}

// StatusEvent describes the sender-visible state of a valentine.
type StatusEvent struct {
	ValentineID       string
	Status            valentine.Status
	RemainingAttempts int
	At                time.Time
}

// EventPublisher receives status changes. Implementations must not block.
type EventPublisher interface {
	PublishStatus(ctx context.Context, ev StatusEvent)
}

// Service implements the redemption flow.
type Service struct {
	cfg Config

	valentines valentine.Store
	ledger     *ledger.Ledger
	codes      *shortcode.Registry
	signer     *capability.Signer
	otp        *otp.Issuer
	hasher     *fingerprint.Hasher
	phones     phone.Normalizer

	notifier notify.Notifier
	events   EventPublisher
	metrics  *metrics.Recorder
	resend   *throttle.Limiter
	log      *slog.Logger
	now      func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithNotifier sets the outbound notifier. The default drops messages.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithEvents sets the status event sink.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPhoneNormalizer overrides the default-country normalizer.
func WithPhoneNormalizer(n phone.Normalizer) Option {
	return func(s *Service) { s.phones = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

type noopEvents struct{}

func (noopEvents) PublishStatus(context.Context, StatusEvent) {}

// NewService validates deps and applies defaults.
func NewService(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	if deps.Valentines == nil || deps.Ledger == nil || deps.Codes == nil || deps.Signer == nil || deps.OTP == nil || deps.Hasher == nil {
		return nil, errors.New("redeem: missing dependency")
	}

	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = def.LinkTTL
	}
	if cfg.ResendMax <= 0 {
		cfg.ResendMax = def.ResendMax
	}
	if cfg.ResendWindow <= 0 {
		cfg.ResendWindow = def.ResendWindow
	}
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = def.PublicBaseURL
	}

	s := &Service{
		cfg:        cfg,
		valentines: deps.Valentines,
		ledger:     deps.Ledger,
		codes:      deps.Codes,
		signer:     deps.Signer,
		otp:        deps.OTP,
		hasher:     deps.Hasher,
		phones:     phone.NewNormalizer(phone.DefaultCountryCode, phone.DefaultSubscriberDigits),
		notifier:   notify.NotifierFunc(func(context.Context, notify.Message) {}),
		events:     noopEvents{},
		resend:     throttle.New(cfg.ResendMax, cfg.ResendWindow),
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// LinkURL renders the receiver-facing URL for a short code.
func (s *Service) LinkURL(code string) string {
	return s.cfg.PublicBaseURL + "/v/" + code
}

// SweepThrottles forgets resend windows that have fully elapsed.
func (s *Service) SweepThrottles(now time.Time) int {
	return s.resend.Sweep(now)
}

// Status returns the sender-visible state of a valentine.
func (s *Service) Status(ctx context.Context, valentineID string) (StatusEvent, error) {
	const op = "redeem.Status"
	rec, err := s.valentines.Get(ctx, strings.TrimSpace(valentineID))
	if err != nil {
		if errors.Is(err, valentine.ErrNotFound) {
			return StatusEvent{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return StatusEvent{}, err
	}
	return statusOf(rec), nil
}

func statusOf(rec valentine.Record) StatusEvent {
	return StatusEvent{
		ValentineID:       rec.ID,
		Status:            rec.Status,
		RemainingAttempts: rec.RemainingAttempts(),
		At:                rec.UpdatedAt,
	}
}

func (s *Service) notify(ctx context.Context, valentineID string, typ notify.Type, to, body string) {
	s.notifier.Notify(ctx, notify.Message{
		ValentineID: valentineID,
		Channel:     s.cfg.Channel,
		Type:        typ,
		To:          to,
		Body:        body,
	})
}
