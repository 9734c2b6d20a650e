package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/dialogue"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// Inbound message outcomes reported to the Observer.
const (
	InboundProcessed = "processed"
	InboundDuplicate = "duplicate"
	InboundError     = "error"

	OutboundReply = "reply"
)

// Processor runs one inbound message through the dialogue.
type Processor interface {
	Process(ctx context.Context, senderID, text, displayName string) (dialogue.Result, error)
}

// Observer receives pipeline events; *metrics.Metrics implements it.
type Observer interface {
	ObserveInbound(status string, elapsed time.Duration)
	ObserveOutbound(kind string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveInbound(string, time.Duration) {}
func (nopObserver) ObserveOutbound(string, error) {}

// Reply is what the transport should send back for one inbound message.
type Reply struct {
	Sender    string
	Text      string
	Duplicate bool
	Result    dialogue.Result
}

// HandlerOpts holds optional ResponseHandler collaborators.
type HandlerOpts struct {
	Dedup       store.DedupRepo
	Contacts    *contacts.Manager
	Service     Service
	Observer    Observer
	CountryCode string
}

// HandlerOption configures a ResponseHandler.
type HandlerOption func(*HandlerOpts)

// WithDedup drops redelivered message ids.
func WithDedup(d store.DedupRepo) HandlerOption {
	return func(o *HandlerOpts) { o.Dedup = d }
}

// WithContacts enables display-name lookup and contact status updates.
func WithContacts(m *contacts.Manager) HandlerOption {
	return func(o *HandlerOpts) { o.Contacts = m }
}

// WithService sets the transport used to send replies for pushed messages.
func WithService(s Service) HandlerOption {
	return func(o *HandlerOpts) { o.Service = s }
}

// WithObserver receives inbound and outbound events.
func WithObserver(obs Observer) HandlerOption {
	return func(o *HandlerOpts) { o.Observer = obs }
}

// WithCountryCode sets the country code used to normalize senders.
func WithCountryCode(cc string) HandlerOption {
	return func(o *HandlerOpts) { o.CountryCode = cc }
}

// ResponseHandler routes inbound messages to the dialogue engine and keeps the
// contact ledger in step with conversation outcomes.
type ResponseHandler struct {
	engine      Processor
	dedup       store.DedupRepo
	contacts    *contacts.Manager
	msgService  Service
	observer    Observer
	countryCode string
}

// NewResponseHandler creates a handler for engine.
func NewResponseHandler(engine Processor, opts ...HandlerOption) *ResponseHandler {
	cfg := HandlerOpts{CountryCode: contacts.DefaultCountryCode}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &ResponseHandler{
		engine:      engine,
		dedup:       cfg.Dedup,
		contacts:    cfg.Contacts,
		msgService:  cfg.Service,
		observer:    cfg.Observer,
		countryCode: cfg.CountryCode,
	}
}

// Handle processes one inbound message and returns the reply text. Messages
// whose id was already recorded return a Reply with Duplicate set and no text.
func (rh *ResponseHandler) Handle(ctx context.Context, msg models.InboundMessage) (Reply, error) {
	start := time.Now()

	sender, err := contacts.NormalizePhone(msg.From, rh.countryCode)
	if err != nil {
		rh.observer.ObserveInbound(InboundError, 0)
		return Reply{}, fmt.Errorf("invalid sender %q: %w", util.RedactPhone(msg.From), err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	if rh.dedup != nil {
		fresh, err := rh.dedup.RecordInbound(ctx, msg.ID, sender)
		if err != nil {
			slog.Warn("ResponseHandler dedup record failed, processing anyway", "error", err, "id", msg.ID)
		} else if !fresh {
			slog.Info("ResponseHandler duplicate inbound message ignored", "id", msg.ID, "from", util.RedactPhone(sender))
			rh.observer.ObserveInbound(InboundDuplicate, 0)
			return Reply{Sender: sender, Duplicate: true}, nil
		}
	}

	name := msg.ProfileName
	if name == "" && rh.contacts != nil {
		name = rh.contacts.DisplayName(ctx, sender)
	}

	slog.Debug("ResponseHandler processing message", "id", msg.ID, "from", util.RedactPhone(sender), "body_length", len(msg.Body))
	res, err := rh.engine.Process(ctx, sender, msg.Body, name)
	if err != nil {
		rh.observer.ObserveInbound(InboundError, 0)
		return Reply{}, fmt.Errorf("failed to process message: %w", err)
	}

	if rh.contacts != nil {
		if err := rh.contacts.RecordOutcome(ctx, sender, res.Ended, res.Outcome); err != nil {
			slog.Warn("ResponseHandler contact status update failed", "error", err, "from", util.RedactPhone(sender))
		}
	}
	if rh.dedup != nil {
		if err := rh.dedup.MarkProcessed(ctx, msg.ID); err != nil {
			slog.Warn("ResponseHandler failed to mark message processed", "error", err, "id", msg.ID)
		}
	}

	rh.observer.ObserveInbound(InboundProcessed, time.Since(start))
	slog.Info("ResponseHandler message processed", "from", util.RedactPhone(sender), "state", res.State, "ended", res.Ended)
	return Reply{Sender: sender, Text: res.Reply, Result: res}, nil
}

// ProcessResponse handles a pushed message and sends the reply through the service.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, msg models.InboundMessage) error {
	if rh.msgService == nil {
		return fmt.Errorf("no messaging service configured")
	}
	reply, err := rh.Handle(ctx, msg)
	if err != nil {
		return err
	}
	if reply.Duplicate || reply.Text == "" {
		return nil
	}
	err = rh.msgService.SendMessage(ctx, reply.Sender, reply.Text)
	rh.observer.ObserveOutbound(OutboundReply, err)
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// Start consumes the service's responses channel until ctx is done or the
// channel is closed.
func (rh *ResponseHandler) Start(ctx context.Context) {
	if rh.msgService == nil {
		slog.Warn("ResponseHandler Start called without messaging service")
		return
	}
	slog.Info("ResponseHandler starting response processing")

	go func() {
		defer slog.Info("ResponseHandler stopped response processing")
		for {
			select {
			case msg, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, msg); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", util.RedactPhone(msg.From))
				}
			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}
