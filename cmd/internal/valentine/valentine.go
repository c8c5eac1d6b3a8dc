// Package valentine owns valentine records and their status state machine.
//
// Status moves one way: PENDING -> ACCEPTED | DECLINED | EXPIRED. Every
// mutation after creation is a single conditional update guarded by
// status = PENDING, so concurrent callers cannot push a record past a
// terminal state or over its attempt budget.
package valentine

import (
	"strings"
	"time"
)

const (
	// DefaultMaxAttempts is the guess budget fixed at creation.
	DefaultMaxAttempts = 3

	// DefaultLinkTTL is how long the receiver link stays redeemable.
	DefaultLinkTTL = 48 * time.Hour

	// MaxActivities bounds the opaque activity list.
	MaxActivities = 16

	// MaxActivityChars bounds one activity label.
	MaxActivityChars = 64

	// MaxMessageChars bounds the opaque message (runes).
	MaxMessageChars = 2000
)

// Status is the redemption state of a record.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
	StatusExpired  Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s.Valid() && s != StatusPending
}

// Response is the receiver's answer.
type Response string

const (
	ResponseYes Response = "YES"
	ResponseNo  Response = "NO"
)

// ParseResponse accepts YES/NO in any case.
func ParseResponse(s string) (Response, bool) {
	switch Response(strings.ToUpper(strings.TrimSpace(s))) {
	case ResponseYes:
		return ResponseYes, true
	case ResponseNo:
		return ResponseNo, true
	}
	return "", false
}

// Status maps a response to its terminal status.
func (r Response) Status() Status {
	if r == ResponseYes {
		return StatusAccepted
	}
	return StatusDeclined
}

// Record is one valentine.
type Record struct {
	ID string

	SenderFingerprint   string
	ReceiverFingerprint string

	// Raw normalized phones, kept only for notification delivery.
	SenderPhone   string
	ReceiverPhone string

	Message    string
	Activities []string

	Status        Status
	GuessAttempts int
	MaxAttempts   int

	OTPCode      *string
	OTPExpiresAt *time.Time
	OTPVerified  bool

	LinkExpiresAt time.Time

	ResponseActivities []string
	RespondedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingAttempts is max(0, MaxAttempts-GuessAttempts).
func (r Record) RemainingAttempts() int {
	n := r.MaxAttempts - r.GuessAttempts
	if n < 0 {
		return 0
	}
	return n
}

// Redeemable reports whether the link may still be used at now.
func (r Record) Redeemable(now time.Time) bool {
	return r.Status == StatusPending && now.Before(r.LinkExpiresAt)
}

// CreateRecord is a normalized insert payload.
type CreateRecord struct {
	ID                  string
	SenderFingerprint   string
	ReceiverFingerprint string
	SenderPhone         string
	ReceiverPhone       string
	Message             string
	Activities          []string
	MaxAttempts         int
	OTPCode             string
	OTPExpiresAt        time.Time
	LinkExpiresAt       time.Time
	Now                 time.Time
}

// Validate checks the payload shape shared by every store.
func (in CreateRecord) Validate() error {
	if len(in.ID) != 26 {
		return ErrInvalidInput
	}
	if len(in.SenderFingerprint) != 64 || len(in.ReceiverFingerprint) != 64 {
		return ErrInvalidInput
	}
	if strings.TrimSpace(in.SenderPhone) == "" || strings.TrimSpace(in.ReceiverPhone) == "" {
		return ErrInvalidInput
	}
	if in.MaxAttempts <= 0 || in.LinkExpiresAt.IsZero() || in.Now.IsZero() {
		return ErrInvalidInput
	}
	if (in.OTPCode == "") != in.OTPExpiresAt.IsZero() {
		return ErrInvalidInput
	}
	return ValidatePayload(in.Message, in.Activities)
}

// ValidatePayload bounds the opaque message and activity list.
func ValidatePayload(message string, activities []string) error {
	if len([]rune(message)) > MaxMessageChars {
		return ErrInvalidInput
	}
	return ValidateActivities(activities)
}

// ValidateActivities bounds an activity list.
func ValidateActivities(activities []string) error {
	if len(activities) > MaxActivities {
		return ErrInvalidInput
	}
	for _, a := range activities {
		if strings.TrimSpace(a) == "" || len([]rune(a)) > MaxActivityChars {
			return ErrInvalidInput
		}
	}
	return nil
}

func newRecord(in CreateRecord) Record {
	r := Record{
		ID:                  in.ID,
		SenderFingerprint:   in.SenderFingerprint,
		ReceiverFingerprint: in.ReceiverFingerprint,
		SenderPhone:         in.SenderPhone,
		ReceiverPhone:       in.ReceiverPhone,
		Message:             in.Message,
		Activities:          cloneStrings(in.Activities),
		Status:              StatusPending,
		MaxAttempts:         in.MaxAttempts,
		LinkExpiresAt:       in.LinkExpiresAt,
		ResponseActivities:  []string{},
		CreatedAt:           in.Now,
		UpdatedAt:           in.Now,
	}
	if in.OTPCode != "" {
		code, exp := in.OTPCode, in.OTPExpiresAt
		r.OTPCode, r.OTPExpiresAt = &code, &exp
	}
	return r
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
