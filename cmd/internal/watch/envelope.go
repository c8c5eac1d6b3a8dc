package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Subprotocol is the only websocket subprotocol the gateway accepts.
const Subprotocol = "valentine.watch.v1"

const (
	Version = 1

	TypeSnapshot = "valentine.snapshot"
	TypeStatus   = "valentine.status"
	TypePing     = "watch.ping"
	TypePong     = "watch.pong"
	TypeError    = "error"
)

var inboundTypes = map[string]struct{}{
	TypePing: {},
}

// Envelope frames every message in both directions.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// ValidateInbound checks a client-sent envelope.
func (e Envelope) ValidateInbound() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := inboundTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	return nil
}

// StatusPayload is carried by snapshot and status envelopes.
// It never includes the message, activities or phones.
type StatusPayload struct {
	ValentineID       string    `json:"valentine_id"`
	Status            string    `json:"status"`
	RemainingAttempts int       `json:"remaining_attempts"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload any, ts time.Time) Envelope {
	b, _ := json.Marshal(payload)
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: b,
	}
}
