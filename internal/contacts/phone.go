// Package contacts manages the outreach contact ledger: phone normalisation,
// CSV import and status transitions driven by conversation outcomes.
package contacts

import (
	"errors"
	"strings"
)

// DefaultCountryCode is used for numbers without an international prefix.
const DefaultCountryCode = "971"

// ErrInvalidPhone is returned when a number has no digits left after cleaning.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone converts raw input (including Twilio's "whatsapp:" addresses)
// to E.164 form. Numbers without a leading + are assumed local to countryCode:
// a leading country code gets a +, a leading trunk 0 is replaced by it, and
// anything else is prefixed with it.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "whatsapp:")

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	digits := strings.TrimLeft(clean, "+")
	if digits == "" || strings.Contains(digits, "+") {
		return "", ErrInvalidPhone
	}

	switch {
	case strings.HasPrefix(clean, "+"):
		return clean, nil
	case strings.HasPrefix(digits, countryCode):
		return "+" + digits, nil
	case strings.HasPrefix(digits, "0"):
		return "+" + countryCode + digits[1:], nil
	default:
		return "+" + countryCode + digits, nil
	}
}
