// Package store provides storage backends for LeadPipe.
//
// This file implements a PostgreSQL-backed store for conversations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/LeadPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ ConversationBackend = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadConversation(ctx context.Context, unit, senderID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT current_state, conversation_data::text, message_count, retry_count, outcome
		   FROM conversations WHERE unit = $1 AND sender_id = $2`, unit, senderID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LoadConversation failed", "error", err, "unit", unit)
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) SaveConversation(ctx context.Context, unit, senderID string, conv *models.Conversation) error {
	data, err := encodeData(conv.ConversationData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(unit, sender_id, current_state, conversation_data, message_count, retry_count, outcome, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
		ON CONFLICT (unit, sender_id)
		DO UPDATE SET
			current_state = EXCLUDED.current_state,
			conversation_data = EXCLUDED.conversation_data,
			message_count = EXCLUDED.message_count,
			retry_count = EXCLUDED.retry_count,
			outcome = EXCLUDED.outcome,
			updated_at = EXCLUDED.updated_at`,
		unit, senderID, conv.CurrentState, data, conv.MessageCount, conv.RetryCount,
		nilIfEmpty(string(conv.Outcome)), time.Now())
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "unit", unit)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "unit", unit, "state", conv.CurrentState)
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, unit, senderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE unit = $1 AND sender_id = $2`, unit, senderID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "unit", unit)
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
