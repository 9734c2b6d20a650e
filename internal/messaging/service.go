// Package messaging connects WhatsApp transports to the dialogue engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

const (
	// DefaultChannelBufferSize is the buffer size of the responses channel.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds a blocked send on the responses channel.
	DefaultChannelTimeout = 1 * time.Second
	// minRecipientDigits rejects obviously truncated numbers.
	minRecipientDigits = 6
)

// ErrServiceStopped is returned by SendMessage after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

var nonDigitRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a recipient and returns it in E.164 form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., listening for events).
	Start(ctx context.Context) error

	// Stop stops background processing and closes the responses channel.
	Stop() error

	// Responses returns a channel of inbound messages pushed by the transport.
	Responses() <-chan models.InboundMessage
}

// canonicalizeE164 strips a whatsapp: prefix and formatting and returns "+digits".
func canonicalizeE164(recipient string) (string, error) {
	if strings.TrimSpace(recipient) == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	digits := nonDigitRegex.ReplaceAllString(strings.TrimPrefix(recipient, "whatsapp:"), "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < minRecipientDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", digits, minRecipientDigits)
	}
	return "+" + digits, nil
}
