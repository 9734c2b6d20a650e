// Package store provides storage backends for LeadPipe.
//
// This file implements an SQLite-backed store for conversations, contacts and
// inbound deduplication.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/LeadPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ ConversationBackend = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// Serialize writers; SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadConversation(ctx context.Context, unit, senderID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT current_state, conversation_data, message_count, retry_count, outcome
		   FROM conversations WHERE unit = ? AND sender_id = ?`, unit, senderID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LoadConversation failed", "error", err, "unit", unit)
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) SaveConversation(ctx context.Context, unit, senderID string, conv *models.Conversation) error {
	data, err := encodeData(conv.ConversationData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations
			(unit, sender_id, current_state, conversation_data, message_count, retry_count, outcome, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		unit, senderID, conv.CurrentState, data, conv.MessageCount, conv.RetryCount,
		nilIfEmpty(string(conv.Outcome)), time.Now())
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "unit", unit)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "unit", unit, "state", conv.CurrentState)
	return nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, unit, senderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE unit = ? AND sender_id = ?`, unit, senderID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "unit", unit)
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
