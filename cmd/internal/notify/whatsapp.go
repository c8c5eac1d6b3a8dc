package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
)

// whatsappClient is the subset of *whatsmeow.Client used for delivery.
type whatsappClient interface {
	IsOnWhatsApp(ctx context.Context, phones []string) ([]types.IsOnWhatsAppResponse, error)
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// WhatsAppSender delivers text messages through a linked WhatsApp device.
type WhatsAppSender struct {
	client whatsappClient
	log    *slog.Logger
}

// NewWhatsAppSender wraps a connected client.
func NewWhatsAppSender(client whatsappClient, log *slog.Logger) *WhatsAppSender {
	if log == nil {
		log = slog.Default()
	}
	return &WhatsAppSender{client: client, log: log}
}

func (s *WhatsAppSender) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Channel != ChannelWhatsApp {
		return ErrUnsupportedChannel
	}

	number := strings.TrimPrefix(m.To, "+")
	resp, err := s.client.IsOnWhatsApp(ctx, []string{number})
	if err != nil {
		return fmt.Errorf("failed to check whatsapp registration: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return ErrNotRegistered
	}

	body := m.Body
	sent, err := s.client.SendMessage(ctx, resp[0].JID, &waE2E.Message{Conversation: &body})
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}

	s.log.DebugContext(ctx, "notify.whatsapp.sent",
		"valentine_id", m.ValentineID,
		"type", string(m.Type),
		"message_id", sent.ID,
	)
	return nil
}

// OpenWhatsApp opens the device store under dataDir and connects the first device.
// An unpaired device prints a pairing QR code to qrOut and blocks until the
// pairing flow ends or ctx is done.
func OpenWhatsApp(ctx context.Context, dataDir string, qrOut io.Writer, log *slog.Logger) (*whatsmeow.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if qrOut == nil {
		qrOut = os.Stdout
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create whatsapp data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, nil)
	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect whatsapp: %w", err)
		}
		log.Info("notify.whatsapp.connected", "jid", client.Store.ID.String())
		return client, nil
	}

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start whatsapp pairing: %w", err)
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect whatsapp: %w", err)
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			if err := WritePairingQR(qrOut, evt.Code); err != nil {
				log.Warn("notify.whatsapp.qr.render_failed", "err", err)
			}
			continue
		}
		log.Info("notify.whatsapp.pairing", "event", evt.Event)
		if evt.Event != "success" {
			client.Disconnect()
			return nil, fmt.Errorf("whatsapp pairing ended: %s", evt.Event)
		}
	}
	return client, nil
}

// WritePairingQR renders code as a terminal QR block.
func WritePairingQR(w io.Writer, code string) error {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%s\nScan with WhatsApp > Linked Devices > Link a Device\n", q.ToSmallString(false))
	return err
}
