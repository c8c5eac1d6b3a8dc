// Package phone normalizes user-entered phone numbers to E.164 form.
//
// Senders and receivers type numbers in many shapes ("0712 345 678",
// "+254712345678", "254712345678"). Fingerprints are only comparable when
// every shape maps to one canonical string, so every phone passes through
// Normalize before it is hashed or stored.
package phone

import (
	"errors"
	"strings"
)

const (
	// DefaultCountryCode is applied to national-format numbers.
	DefaultCountryCode = "254"

	// DefaultSubscriberDigits is the national number length after the trunk prefix.
	DefaultSubscriberDigits = 9

	minE164Digits = 8
	maxE164Digits = 15
)

// ErrInvalid is returned when input cannot be mapped to an E.164 number.
var ErrInvalid = errors.New("invalid phone number")

// Normalizer maps raw input to E.164 using a default country.
type Normalizer struct {
	countryCode      string
	subscriberDigits int
}

// NewNormalizer constructs a Normalizer. Empty or invalid inputs select the defaults.
func NewNormalizer(countryCode string, subscriberDigits int) Normalizer {
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" || !allDigits(cc) || len(cc) > 3 {
		cc = DefaultCountryCode
	}
	if subscriberDigits <= 0 {
		subscriberDigits = DefaultSubscriberDigits
	}
	return Normalizer{countryCode: cc, subscriberDigits: subscriberDigits}
}

// CountryCode returns the configured default country code (digits only).
func (n Normalizer) CountryCode() string { return n.countryCode }

// Normalize returns "+<digits>" or ErrInvalid.
func (n Normalizer) Normalize(raw string) (string, error) {
	if n.countryCode == "" {
		n = NewNormalizer("", 0)
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalid
	}

	international := strings.HasPrefix(s, "+")
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", ErrInvalid
		}
	}
	if strings.Count(s, "+") > 1 || (strings.Contains(s, "+") && !international) {
		return "", ErrInvalid
	}

	digits := digitsOnly(s)
	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}

	switch {
	case international:
	case len(digits) == n.subscriberDigits+1 && digits[0] == '0':
		digits = n.countryCode + digits[1:]
	case len(digits) == n.subscriberDigits && digits[0] != '0':
		digits = n.countryCode + digits
	case len(digits) == len(n.countryCode)+n.subscriberDigits && strings.HasPrefix(digits, n.countryCode):
	default:
		return "", ErrInvalid
	}

	if len(digits) < minE164Digits || len(digits) > maxE164Digits || digits[0] == '0' {
		return "", ErrInvalid
	}
	return "+" + digits, nil
}

// Normalize uses the package defaults.
func Normalize(raw string) (string, error) {
	return NewNormalizer(DefaultCountryCode, DefaultSubscriberDigits).Normalize(raw)
}

// Mask hides all but the last three digits, for logs.
func Mask(e164 string) string {
	if len(e164) <= 4 {
		return "***"
	}
	return e164[:1] + strings.Repeat("*", len(e164)-4) + e164[len(e164)-3:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
