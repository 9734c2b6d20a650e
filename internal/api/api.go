// Package api exposes the Twilio webhook and the admin endpoints of LeadPipe.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/twilio/twilio-go/client"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/dialogue"
	"github.com/BTreeMap/LeadPipe/internal/messaging"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":5000"
	// ServiceName is reported by the index and health endpoints.
	ServiceName = "LeadPipe"
	// Version is reported by the index endpoint.
	Version = "1.0"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Conversations is the engine surface used by the admin endpoints.
type Conversations interface {
	Summary(ctx context.Context, senderID string) (models.ConversationSummary, error)
	Reset(ctx context.Context, senderID string) error
	Stats() dialogue.Stats
}

// Inbound handles one webhook message; *messaging.ResponseHandler implements it.
type Inbound interface {
	Handle(ctx context.Context, msg models.InboundMessage) (messaging.Reply, error)
}

// Opts holds optional server settings.
type Opts struct {
	Addr        string
	Contacts    *contacts.Manager
	Metrics     http.Handler
	AuthToken   string // Twilio auth token; enables X-Twilio-Signature checks
	PublicURL   string // webhook URL exactly as configured in Twilio
	CountryCode string
}

// Option configures the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithContacts adds ledger statistics to /stats.
func WithContacts(m *contacts.Manager) Option {
	return func(o *Opts) { o.Contacts = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) { o.Metrics = h }
}

// WithSignatureValidation rejects webhook requests whose X-Twilio-Signature
// does not match authToken. publicURL may be empty, in which case the URL is
// rebuilt from the request.
func WithSignatureValidation(authToken, publicURL string) Option {
	return func(o *Opts) {
		o.AuthToken = authToken
		o.PublicURL = publicURL
	}
}

// WithCountryCode sets the country code used to normalize path phone numbers.
func WithCountryCode(cc string) Option {
	return func(o *Opts) { o.CountryCode = cc }
}

// Server serves the LeadPipe HTTP API.
type Server struct {
	conversations Conversations
	inbound       Inbound
	contacts      *contacts.Manager
	metrics       http.Handler

	validateSignature bool
	validator         client.RequestValidator
	publicURL         string

	countryCode string
	addr        string
	router      chi.Router
}

// NewServer builds the router for conv and inbound.
func NewServer(conv Conversations, inbound Inbound, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, CountryCode: contacts.DefaultCountryCode}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		conversations: conv,
		inbound:       inbound,
		contacts:      cfg.Contacts,
		metrics:       cfg.Metrics,
		publicURL:     cfg.PublicURL,
		countryCode:   cfg.CountryCode,
		addr:          cfg.Addr,
	}
	if cfg.AuthToken != "" {
		s.validateSignature = true
		s.validator = client.NewRequestValidator(cfg.AuthToken)
	}
	s.router = s.routes()
	slog.Debug("Server created", "addr", s.addr, "validate_signature", s.validateSignature, "metrics", s.metrics != nil)
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.indexHandler)
	r.Get("/health", s.healthHandler)
	r.Get("/stats", s.statsHandler)

	r.Get("/webhook", s.webhookStatusHandler)
	r.Post("/webhook", s.webhookHandler)

	r.Get("/conversations/{sender}", s.getConversationHandler)
	r.Delete("/conversations/{sender}", s.resetConversationHandler)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	}
}
