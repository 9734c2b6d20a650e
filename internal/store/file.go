package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// DefaultDirPermissions defines the default permissions for state directories.
const DefaultDirPermissions = 0755

// FileBackend keeps one JSON document per unit, conversations_YYYYMMDD.json,
// mapping sender id to its conversation record.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

var _ ConversationBackend = (*FileBackend)(nil)

// NewFileBackend creates the state directory if needed.
func NewFileBackend(opts ...Option) (*FileBackend, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("state directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	slog.Debug("NewFileBackend: state directory ready", "dir", cfg.Dir)
	return &FileBackend{dir: cfg.Dir}, nil
}

// Path returns the file holding the given unit.
func (b *FileBackend) Path(unit string) string {
	return filepath.Join(b.dir, "conversations_"+unit+".json")
}

func (b *FileBackend) LoadConversation(_ context.Context, unit, senderID string) (*models.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.read(unit)
	if err != nil {
		return nil, err
	}
	return all[senderID], nil
}

func (b *FileBackend) SaveConversation(_ context.Context, unit, senderID string, conv *models.Conversation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.read(unit)
	if err != nil {
		slog.Warn("FileBackend.SaveConversation: unreadable unit file, starting fresh", "error", err, "unit", unit)
		all = make(map[string]*models.Conversation)
	}
	all[senderID] = conv
	return b.write(unit, all)
}

func (b *FileBackend) DeleteConversation(_ context.Context, unit, senderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	all, err := b.read(unit)
	if err != nil {
		return err
	}
	if _, ok := all[senderID]; !ok {
		return nil
	}
	delete(all, senderID)
	return b.write(unit, all)
}

func (b *FileBackend) read(unit string) (map[string]*models.Conversation, error) {
	data, err := os.ReadFile(b.Path(unit))
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*models.Conversation), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.Path(unit), err)
	}
	all := make(map[string]*models.Conversation)
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", b.Path(unit), err)
	}
	return all, nil
}

// write replaces the unit file atomically via a temp file and rename.
func (b *FileBackend) write(unit string, all map[string]*models.Conversation) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	tmp, err := os.CreateTemp(b.dir, "conversations_"+unit+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.Path(unit)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", b.Path(unit), err)
	}
	return nil
}
