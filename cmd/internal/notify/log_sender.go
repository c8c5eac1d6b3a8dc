package notify

import (
	"context"
	"log/slog"

	"github.com/rodweleo/guess-my-valentine/cmd/security/phone"
)

// LogSender writes notifications to the log instead of delivering them.
// Bodies can carry OTP codes, so they are only logged when explicitly enabled.
type LogSender struct {
	log        *slog.Logger
	withBodies bool
}

// NewLogSender constructs a LogSender.
func NewLogSender(log *slog.Logger, withBodies bool) *LogSender {
	if log == nil {
		log = slog.Default()
	}
	return &LogSender{log: log, withBodies: withBodies}
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	attrs := []any{
		"valentine_id", m.ValentineID,
		"channel", string(m.Channel),
		"type", string(m.Type),
		"to", phone.Mask(m.To),
		"body_len", len(m.Body),
	}
	if s.withBodies {
		attrs = append(attrs, "body", m.Body)
	}
	s.log.InfoContext(ctx, "notify.log.send", attrs...)
	return nil
}
