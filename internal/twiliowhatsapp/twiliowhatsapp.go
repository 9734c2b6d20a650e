// Package twiliowhatsapp wraps the Twilio REST API for WhatsApp delivery.
package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/LeadPipe/internal/util"
)

// AddressPrefix marks a WhatsApp address on the Twilio API.
const AddressPrefix = "whatsapp:"

// ErrSandboxRecipient is returned when sandbox mode blocks a recipient other
// than the configured test number.
var ErrSandboxRecipient = errors.New("recipient not allowed in sandbox mode")

// Sender delivers a text message to a WhatsApp number.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID    string
	AuthToken     string
	FromWhats     string
	Sandbox       bool
	TestRecipient string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number, with or without the whatsapp: prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// WithSandbox restricts delivery to testRecipient. Sandbox numbers can only
// reach users who joined the sandbox.
func WithSandbox(enabled bool, testRecipient string) Option {
	return func(o *Opts) {
		o.Sandbox = enabled
		o.TestRecipient = testRecipient
	}
}

// messageAPI is the subset of the Twilio v2010 API used by Client.
type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	api           messageAPI
	fromWhats     string // WhatsApp number in "whatsapp:+1234567890" format
	sandbox       bool
	testRecipient string
}

var _ Sender = (*Client)(nil)

// NewClient creates a Twilio client, falling back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_NUMBER for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_WHATSAPP_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "",
		"sandbox", cfg.Sandbox)

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)
	return newClient(client.Api, cfg), nil
}

func newClient(api messageAPI, cfg Opts) *Client {
	return &Client{
		api:           api,
		fromWhats:     Address(cfg.FromWhats),
		sandbox:       cfg.Sandbox,
		testRecipient: Address(cfg.TestRecipient),
	}
}

// Address adds the whatsapp: prefix and strips spaces.
func Address(number string) string {
	number = strings.ReplaceAll(strings.TrimSpace(number), " ", "")
	if number == "" || strings.HasPrefix(number, AddressPrefix) {
		return number
	}
	return AddressPrefix + number
}

// SendMessage sends a WhatsApp message using Twilio API
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	to = Address(to)
	if c.sandbox && c.testRecipient != "" && to != c.testRecipient {
		slog.Warn("Twilio SendMessage blocked by sandbox guard", "to", util.RedactPhone(to))
		return fmt.Errorf("%w: %s", ErrSandboxRecipient, util.RedactPhone(to))
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", util.RedactPhone(to), "error", err)
		return fmt.Errorf("failed to send message to %s: %w", util.RedactPhone(to), err)
	}

	attrs := []any{"to", util.RedactPhone(to)}
	if msg != nil && msg.Sid != nil {
		attrs = append(attrs, "sid", *msg.Sid)
	}
	slog.Info("Twilio message sent", attrs...)
	return nil
}

// MockClient records sent messages. It is safe for concurrent use.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	// Err, when set, is returned by every SendMessage call.
	Err error
}

type SentMessage struct {
	To   string
	Body string
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
