package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// UnitLayout formats the persistence unit: one unit per local calendar day.
const UnitLayout = "20060102"

// ConversationBackend persists conversation records grouped by unit.
// LoadConversation returns (nil, nil) when no record exists.
type ConversationBackend interface {
	LoadConversation(ctx context.Context, unit, senderID string) (*models.Conversation, error)
	SaveConversation(ctx context.Context, unit, senderID string, conv *models.Conversation) error
	DeleteConversation(ctx context.Context, unit, senderID string) error
}

// ConversationStore is a cache-aside store: an in-memory map that is authoritative
// for the process lifetime, read-through on miss and write-through on every change.
// Backend failures are logged and swallowed; callers always get a usable answer.
//
// With WithReadThrough the backend is authoritative instead: every Get reloads the
// record, and the map only serves Snapshot and backend read failures.
type ConversationStore struct {
	backend     ConversationBackend
	now         func() time.Time
	readThrough bool

	mu    sync.RWMutex
	cache map[string]*models.Conversation
}

// NewConversationStore wraps backend with an in-memory cache. A nil backend keeps
// conversations in memory only.
func NewConversationStore(backend ConversationBackend, opts ...Option) *ConversationStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ConversationStore{
		backend:     backend,
		now:         cfg.Now,
		readThrough: cfg.ReadThrough && backend != nil,
		cache:       make(map[string]*models.Conversation),
	}
}

// Unit returns the current persistence unit (YYYYMMDD, local time).
func (s *ConversationStore) Unit() string {
	return s.now().Format(UnitLayout)
}

// Get returns a copy of the conversation for senderID, reading through to the
// backend on a cache miss (or always, in read-through mode). Records the backend
// cannot read or decode are treated as absent.
func (s *ConversationStore) Get(ctx context.Context, senderID string) (*models.Conversation, bool) {
	s.mu.RLock()
	cached, ok := s.cache[senderID]
	s.mu.RUnlock()
	if ok && !s.readThrough {
		return cached.Clone(), true
	}

	if s.backend == nil {
		return nil, false
	}

	unit := s.Unit()
	loaded, err := s.backend.LoadConversation(ctx, unit, senderID)
	if err != nil {
		if ok {
			slog.Warn("ConversationStore.Get: backend load failed, using cached copy", "error", err, "unit", unit)
			return cached.Clone(), true
		}
		slog.Error("ConversationStore.Get: backend load failed, treating as absent", "error", err, "unit", unit)
		return nil, false
	}
	if loaded == nil {
		if s.readThrough {
			s.forget(senderID)
		}
		return nil, false
	}
	if err := loaded.Validate(); err != nil {
		// Returned as-is; the engine ends malformed conversations with the technical message.
		slog.Warn("ConversationStore.Get: stored record is malformed", "error", err, "unit", unit)
	}
	if loaded.ConversationData == nil {
		loaded.ConversationData = make(map[string]string)
	}

	s.mu.Lock()
	if existing, ok := s.cache[senderID]; ok && !s.readThrough {
		// A concurrent Set wins over the read-through copy.
		loaded = existing
	} else {
		s.cache[senderID] = loaded
	}
	s.mu.Unlock()

	slog.Debug("ConversationStore.Get: restored from backend", "unit", unit, "state", loaded.CurrentState)
	return loaded.Clone(), true
}

func (s *ConversationStore) forget(senderID string) {
	s.mu.Lock()
	delete(s.cache, senderID)
	s.mu.Unlock()
}

// Set records conv in memory and writes it through to the backend.
func (s *ConversationStore) Set(ctx context.Context, senderID string, conv *models.Conversation) {
	stored := conv.Clone()

	s.mu.Lock()
	s.cache[senderID] = stored
	s.mu.Unlock()

	if s.backend == nil {
		return
	}
	unit := s.Unit()
	if err := s.backend.SaveConversation(ctx, unit, senderID, stored.Clone()); err != nil {
		slog.Error("ConversationStore.Set: backend save failed", "error", err, "unit", unit)
	}
}

// Delete removes senderID from memory and from the current unit of the backend.
func (s *ConversationStore) Delete(ctx context.Context, senderID string) {
	s.forget(senderID)

	if s.backend == nil {
		return
	}
	unit := s.Unit()
	if err := s.backend.DeleteConversation(ctx, unit, senderID); err != nil {
		slog.Error("ConversationStore.Delete: backend delete failed", "error", err, "unit", unit)
	}
}

// Snapshot returns copies of every conversation held in memory.
func (s *ConversationStore) Snapshot() map[string]*models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Conversation, len(s.cache))
	for id, conv := range s.cache {
		out[id] = conv.Clone()
	}
	return out
}
