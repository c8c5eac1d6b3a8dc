package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the lowercased message type.
const DefaultSubjectPrefix = "valentine.notify"

// publisher is the subset of *nats.Conn used here.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NATSMessage is the JSON payload published for downstream delivery workers.
type NATSMessage struct {
	ValentineID string    `json:"valentine_id"`
	Channel     string    `json:"channel"`
	Type        string    `json:"type"`
	To          string    `json:"to"`
	Body        string    `json:"body"`
	QueuedAt    time.Time `json:"queued_at"`
}

// NATSSender hands notifications to a NATS subject per message type.
type NATSSender struct {
	conn   publisher
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

// NewNATSSender constructs a NATSSender over an established connection.
func NewNATSSender(conn publisher, prefix string, log *slog.Logger) *NATSSender {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATSSender{conn: conn, prefix: prefix, log: log, now: time.Now}
}

// ConnectNATS dials url with a recognizable client name.
func ConnectNATS(url string, log *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("guess-my-valentine"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && log != nil {
				log.Warn("notify.nats.disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if log != nil {
				log.Info("notify.nats.reconnected", "url", c.ConnectedUrlRedacted())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Subject returns the subject used for t.
func (s *NATSSender) Subject(t Type) string {
	return s.prefix + "." + strings.ToLower(string(t))
}

func (s *NATSSender) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(NATSMessage{
		ValentineID: m.ValentineID,
		Channel:     string(m.Channel),
		Type:        string(m.Type),
		To:          m.To,
		Body:        m.Body,
		QueuedAt:    s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := s.Subject(m.Type)
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	s.log.DebugContext(ctx, "notify.nats.published", "subject", subject, "valentine_id", m.ValentineID)
	return nil
}
