// Package notify delivers valentine notifications over pluggable channels.
//
// Delivery is best effort. Callers enqueue through a Dispatcher and never see
// transport errors; failures are logged and counted.
package notify

import (
	"context"
	"errors"
)

// Channel is the delivery medium requested for a message.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
)

// Type classifies a message.
type Type string

const (
	TypeOTP      Type = "OTP"
	TypeLink     Type = "LINK"
	TypeResponse Type = "RESPONSE"
	TypeReminder Type = "REMINDER"
)

var (
	ErrInvalidMessage     = errors.New("invalid notification")
	ErrUnsupportedChannel = errors.New("unsupported notification channel")
	ErrNotRegistered      = errors.New("recipient not reachable on channel")
	ErrQueueFull          = errors.New("notification queue full")
)

// Message is one outbound notification.
type Message struct {
	ValentineID string
	Channel     Channel
	Type        Type
	To          string
	Body        string
}

// Validate checks required fields.
func (m Message) Validate() error {
	if m.To == "" || m.Body == "" || m.Type == "" {
		return ErrInvalidMessage
	}
	switch m.Channel {
	case ChannelWhatsApp, ChannelSMS:
		return nil
	default:
		return ErrUnsupportedChannel
	}
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Notifier accepts messages without reporting delivery outcome.
type Notifier interface {
	Notify(ctx context.Context, m Message)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, m Message)

func (f NotifierFunc) Notify(ctx context.Context, m Message) { f(ctx, m) }
