package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/dialogue"
	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"github.com/BTreeMap/LeadPipe/internal/store"
	"github.com/BTreeMap/LeadPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/LeadPipe/internal/whatsapp"
)

// sqlStore is implemented by both SQLiteStore and PostgresStore.
type sqlStore interface {
	contacts.Ledger
	store.DedupRepo
	store.ConversationBackend
	Close() error
}

func sqlDriver(dsn string) string {
	return store.DetectDSNType(dsn)
}

// openSQLStore opens the contacts and dedup database.
func openSQLStore(cfg Config) (sqlStore, error) {
	dsn := cfg.SQLDSN()
	if sqlDriver(dsn) == "postgres" {
		slog.Debug("openSQLStore: using PostgreSQL")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("openSQLStore: using SQLite", "path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// app holds the components shared by the serve and outreach commands.
type app struct {
	cfg      Config
	doc      *flow.Document
	sql      sqlStore
	redis    *redis.Client
	dedup    store.DedupRepo
	engine   *dialogue.Engine
	contacts *contacts.Manager
	metrics  *metrics.Metrics
}

// newApp loads the flow and wires storage, the clarifier and the engine.
func newApp(ctx context.Context, cfg Config) (*app, error) {
	doc, err := flow.Load(cfg.FlowPath())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, doc: doc, metrics: metrics.New()}
	if a.sql, err = openSQLStore(cfg); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.dedup = a.sql
	a.contacts = contacts.NewManager(a.sql, contacts.WithCountryCode(cfg.CountryCode), contacts.WithProduct(cfg.ProductKey))

	engineOpts := []dialogue.Option{
		dialogue.WithRecorder(a.metrics),
		dialogue.WithClarifyTimeout(cfg.ClarifyTimeout),
	}
	if clarifier := newClarifier(ctx, cfg); clarifier != nil {
		engineOpts = append(engineOpts, dialogue.WithClarifier(clarifier))
	}

	var (
		backend   store.ConversationBackend
		storeOpts []store.Option
	)
	switch {
	case cfg.RedisAddr != "":
		if a.redis, err = store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			a.Close()
			return nil, err
		}
		backend = store.NewRedisBackend(a.redis)
		a.dedup = store.NewRedisBackend(a.redis)
		engineOpts = append(engineOpts, dialogue.WithLocker(store.NewRedisLocker(a.redis, store.DefaultKeyPrefix)))
		// Other instances write the same keys.
		storeOpts = append(storeOpts, store.WithReadThrough())
		slog.Info("newApp: conversations stored in Redis", "addr", cfg.RedisAddr)
	case cfg.DatabaseURL != "":
		backend = a.sql
		slog.Info("newApp: conversations stored in database", "driver", sqlDriver(cfg.DatabaseURL))
	default:
		dir := filepath.Join(cfg.StateDir, "conversations")
		if backend, err = store.NewFileBackend(store.WithDir(dir)); err != nil {
			a.Close()
			return nil, err
		}
		slog.Info("newApp: conversations stored in JSON files", "dir", dir)
	}

	a.engine = dialogue.New(doc, store.NewConversationStore(backend, storeOpts...), engineOpts...)
	return a, nil
}

// newClarifier returns nil when no provider is configured; the engine then
// answers unclear replies with the static fallback.
func newClarifier(ctx context.Context, cfg Config) dialogue.Clarifier {
	var genaiOpts []genai.Option
	if cfg.GenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(cfg.GenAIModel))
	}

	if cfg.UseGemini {
		client, err := genai.NewGeminiClient(ctx, append(genaiOpts, genai.WithAPIKey(cfg.GeminiAPIKey))...)
		if err != nil {
			slog.Warn("newClarifier: Gemini unavailable, using static clarifications", "error", err)
			return nil
		}
		return client
	}
	client, err := genai.NewClient(append(genaiOpts, genai.WithAPIKey(cfg.OpenAIAPIKey))...)
	if err != nil {
		slog.Warn("newClarifier: OpenAI unavailable, using static clarifications", "error", err)
		return nil
	}
	return client
}

// newService builds the configured WhatsApp transport. The returned cleanup
// disconnects it.
func (a *app) newService(ctx context.Context) (messaging.Service, func(), error) {
	cfg := a.cfg
	if err := cfg.validateTransport(); err != nil {
		return nil, nil, err
	}

	switch cfg.Transport {
	case TransportWhatsmeow:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(cfg.WhatsmeowDSN())}
		if cfg.QRPath != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(cfg.QRPath))
		}
		if cfg.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to WhatsApp: %w", err)
		}
		return messaging.NewWhatsAppService(client), client.Disconnect, nil
	default:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioNumber),
			twiliowhatsapp.WithSandbox(cfg.TwilioSandbox, cfg.TestRecipient),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), func() {}, nil
	}
}

// Close releases database connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("app.Close: redis close failed", "error", err)
		}
	}
	if a.sql != nil {
		if err := a.sql.Close(); err != nil {
			slog.Warn("app.Close: database close failed", "error", err)
		}
	}
}
