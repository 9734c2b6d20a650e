package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

// eventSource is satisfied by *whatsapp.Client.
type eventSource interface {
	AddEventHandler(fn func(evt interface{})) uint32
	RemoveEventHandler(id uint32)
}

// WhatsAppService implements Service using the whatsmeow client. Inbound text
// messages are pushed onto Responses.
type WhatsAppService struct {
	client    whatsapp.Sender
	events    eventSource
	handlerID uint32
	responses chan models.InboundMessage
	mu        sync.RWMutex
	started   bool
	stopped   bool
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService wraps client. Event handling is enabled when the client
// can deliver whatsmeow events.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{
		client:    client,
		responses: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
	if src, ok := client.(eventSource); ok {
		s.events = src
		slog.Debug("WhatsAppService created with event-capable client")
	} else {
		slog.Debug("WhatsAppService created with send-only client (likely mock)")
	}
	return s
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizeE164(recipient)
}

// Start registers the whatsmeow event handler.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped || s.events == nil {
		return nil
	}
	s.handlerID = s.events.AddEventHandler(s.handleEvent)
	s.started = true
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop unregisters the event handler and closes the responses channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if s.started {
		s.events.RemoveEventHandler(s.handlerID)
	}
	s.stopped = true
	close(s.responses)
	slog.Info("WhatsAppService stopped and channels closed")
	return nil
}

// SendMessage sends a message through whatsmeow.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", util.RedactPhone(canonicalTo))
		return err
	}
	return nil
}

// Responses returns a channel of inbound messages.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.responses
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Connected:
		slog.Info("WhatsAppService connected")
	case *events.Disconnected:
		slog.Warn("WhatsAppService disconnected")
	}
}

// handleIncomingMessage forwards direct text messages from other users.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}

	var text string
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("WhatsAppService ignoring non-text message", "id", evt.Info.ID)
		return
	}

	msg := models.InboundMessage{
		ID:          string(evt.Info.ID),
		From:        whatsapp.Phone(evt.Info.Sender),
		Body:        text,
		ProfileName: evt.Info.PushName,
		Time:        evt.Info.Timestamp.Unix(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", util.RedactPhone(msg.From))
		return
	}
	select {
	case s.responses <- msg:
		slog.Debug("WhatsAppService incoming message forwarded", "from", util.RedactPhone(msg.From))
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", util.RedactPhone(msg.From), "timeout", DefaultChannelTimeout)
	}
}
