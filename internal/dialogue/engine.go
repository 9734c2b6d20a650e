// Package dialogue implements the qualification dialogue engine: it resolves
// per-sender conversation state, applies the transition rules of a Flow Document
// and returns the next reply.
//
// The engine never surfaces protocol, persistence or capability failures to the
// caller. They are logged and mapped to deterministic replies.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

var (
	// ErrEmptySender is returned when a call carries no sender id.
	ErrEmptySender = errors.New("sender id is empty")
	// ErrUnknownState marks a stored state id the flow does not define.
	ErrUnknownState = errors.New("unknown dialogue state")
)

// Defaults for engine options.
const (
	DefaultClarifyTimeout = 5 * time.Second
	DefaultLockTTL        = 30 * time.Second
)

// Store is the conversation store the engine reads and writes.
type Store interface {
	Get(ctx context.Context, senderID string) (*models.Conversation, bool)
	Set(ctx context.Context, senderID string, conv *models.Conversation)
	Delete(ctx context.Context, senderID string)
	Snapshot() map[string]*models.Conversation
}

// Clarifier generates a short nudge for an unclear reply.
type Clarifier interface {
	Enabled() bool
	Generate(ctx context.Context, req genai.ClarificationRequest) (string, error)
}

// Result is the outcome of one inbound message.
type Result struct {
	Reply   string
	Ended   bool
	Outcome models.Outcome
	State   string
}

// Opts holds optional engine collaborators.
type Opts struct {
	Clarifier      Clarifier
	ClarifyTimeout time.Duration
	Locker         Locker
	LockTTL        time.Duration
	Recorder       Recorder
}

// Option configures the engine.
type Option func(*Opts)

// WithClarifier enables generative clarification for unclear yes/no replies.
func WithClarifier(c Clarifier) Option {
	return func(o *Opts) { o.Clarifier = c }
}

// WithClarifyTimeout bounds each clarification call.
func WithClarifyTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ClarifyTimeout = d }
}

// WithLocker adds a distributed per-sender lock on top of the in-process one.
func WithLocker(l Locker) Option {
	return func(o *Opts) { o.Locker = l }
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(d time.Duration) Option {
	return func(o *Opts) { o.LockTTL = d }
}

// WithRecorder receives transition, clarification and outcome events.
func WithRecorder(r Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// Engine drives conversations through a flow document.
type Engine struct {
	doc            *flow.Document
	store          Store
	clarifier      Clarifier
	clarifyTimeout time.Duration
	locks          *senderLocks
	recorder       Recorder
}

// New creates an engine for doc backed by store.
func New(doc *flow.Document, store Store, opts ...Option) *Engine {
	cfg := Opts{
		ClarifyTimeout: DefaultClarifyTimeout,
		LockTTL:        DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ClarifyTimeout <= 0 {
		cfg.ClarifyTimeout = DefaultClarifyTimeout
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &Engine{
		doc:            doc,
		store:          store,
		clarifier:      cfg.Clarifier,
		clarifyTimeout: cfg.ClarifyTimeout,
		locks:          newSenderLocks(cfg.Locker, cfg.LockTTL),
		recorder:       cfg.Recorder,
	}
}

// Document returns the flow the engine runs.
func (e *Engine) Document() *flow.Document {
	return e.doc
}

// Process handles one inbound message from senderID and returns the reply.
// The only error is ErrEmptySender.
func (e *Engine) Process(ctx context.Context, senderID, text, displayName string) (Result, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return Result{}, ErrEmptySender
	}

	var res Result
	e.locks.with(ctx, senderID, func(ctx context.Context) {
		res = e.process(ctx, senderID, text, displayName)
	})
	return res, nil
}

func (e *Engine) process(ctx context.Context, senderID, text, displayName string) Result {
	conv, ok := e.store.Get(ctx, senderID)
	if !ok {
		conv = models.NewConversation()
		slog.Info("Engine.Process: new conversation", "sender", util.RedactPhone(senderID))
	}
	from := conv.CurrentState

	if conv.IsEnded() {
		slog.Debug("Engine.Process: conversation already ended", "sender", util.RedactPhone(senderID))
		return Result{Reply: e.doc.ClosingMessage, Ended: true, Outcome: conv.Outcome, State: models.StateEnd}
	}

	var reply string
	if err := conv.Validate(); err != nil {
		reply = e.protocolError(conv, err)
	} else if conv.CurrentState == models.StateInitial {
		reply = e.doc.RenderGreeting(displayName)
		conv.CurrentState = e.doc.Initial().NextState
	} else if state, ok := e.doc.State(conv.CurrentState); !ok {
		reply = e.protocolError(conv, ErrUnknownState)
	} else {
		reply = e.dispatch(ctx, conv, state, text)
	}

	conv.MessageCount++
	e.store.Set(ctx, senderID, conv)

	if from != conv.CurrentState {
		e.recorder.ObserveTransition(from, conv.CurrentState)
		slog.Info("Engine.Process: transition", "sender", util.RedactPhone(senderID), "from", from, "to", conv.CurrentState)
	}
	if conv.IsEnded() && conv.Outcome != models.OutcomeNone {
		e.recorder.ObserveOutcome(conv.Outcome)
	}

	return Result{Reply: reply, Ended: conv.IsEnded(), Outcome: conv.Outcome, State: conv.CurrentState}
}

func (e *Engine) dispatch(ctx context.Context, conv *models.Conversation, state *flow.State, text string) string {
	switch state.Kind {
	case flow.KindYesNo:
		return e.handleYesNo(ctx, conv, state, text)
	case flow.KindPrompt:
		conv.CurrentState = state.Prompt.NextState
		return state.Prompt.Message
	case flow.KindAnswer:
		return e.handleAnswer(conv, state, text)
	case flow.KindEvaluate:
		return e.evaluate(conv, state.Evaluate)
	default:
		// A greeting outside INITIAL is rejected at load.
		return e.protocolError(conv, ErrUnknownState)
	}
}

// protocolError forces the conversation to END and returns the technical message.
func (e *Engine) protocolError(conv *models.Conversation, err error) string {
	slog.Error("Engine.Process: protocol error, ending conversation", "error", err, "state", conv.CurrentState)
	conv.CurrentState = models.StateEnd
	if conv.ConversationData == nil {
		conv.ConversationData = make(map[string]string)
	}
	return e.doc.TechnicalErrorMessage
}

// Start greets a sender who has never been greeted, delivering the greeting
// through deliver. State moves past INITIAL only when delivery succeeds.
// It reports whether a greeting was sent.
func (e *Engine) Start(ctx context.Context, senderID, displayName string, deliver func(ctx context.Context, message string) error) (bool, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return false, ErrEmptySender
	}

	var (
		sent bool
		err  error
	)
	e.locks.with(ctx, senderID, func(ctx context.Context) {
		conv, ok := e.store.Get(ctx, senderID)
		if !ok {
			conv = models.NewConversation()
		}
		if conv.CurrentState != models.StateInitial {
			slog.Debug("Engine.Start: sender already greeted", "sender", util.RedactPhone(senderID), "state", conv.CurrentState)
			return
		}
		if err = deliver(ctx, e.doc.RenderGreeting(displayName)); err != nil {
			slog.Warn("Engine.Start: greeting delivery failed", "sender", util.RedactPhone(senderID), "error", err)
			return
		}
		conv.CurrentState = e.doc.Initial().NextState
		conv.MessageCount++
		e.store.Set(ctx, senderID, conv)
		e.recorder.ObserveTransition(models.StateInitial, conv.CurrentState)
		sent = true
	})
	return sent, err
}

// Reset deletes the stored conversation so the next message starts at INITIAL.
func (e *Engine) Reset(ctx context.Context, senderID string) error {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return ErrEmptySender
	}
	e.locks.with(ctx, senderID, func(ctx context.Context) {
		e.store.Delete(ctx, senderID)
	})
	slog.Info("Engine.Reset: conversation reset", "sender", util.RedactPhone(senderID))
	return nil
}

// Summary describes the sender's conversation; unknown senders report INITIAL.
func (e *Engine) Summary(ctx context.Context, senderID string) (models.ConversationSummary, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return models.ConversationSummary{}, ErrEmptySender
	}
	conv, ok := e.store.Get(ctx, senderID)
	if !ok {
		conv = models.NewConversation()
	}
	return models.ConversationSummary{
		PhoneNumber:  senderID,
		CurrentState: conv.CurrentState,
		MessageCount: conv.MessageCount,
		RetryCount:   conv.RetryCount,
		Outcome:      conv.Outcome,
		Data:         conv.ConversationData,
	}, nil
}

// Snapshot returns copies of the conversations held in memory.
func (e *Engine) Snapshot() map[string]*models.Conversation {
	return e.store.Snapshot()
}

// Stats counts the in-memory conversations.
type Stats struct {
	Total        int `json:"total_conversations"`
	Active       int `json:"active_conversations"`
	Qualified    int `json:"qualified_leads"`
	Disqualified int `json:"disqualified_leads"`
}

// Stats summarizes Snapshot.
func (e *Engine) Stats() Stats {
	var s Stats
	for _, conv := range e.store.Snapshot() {
		s.Total++
		if !conv.IsEnded() {
			s.Active++
		}
		switch conv.Outcome {
		case models.OutcomeQualified:
			s.Qualified++
		case models.OutcomeDisqualified:
			s.Disqualified++
		}
	}
	return s
}
