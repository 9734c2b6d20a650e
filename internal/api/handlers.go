package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/LeadPipe/internal/contacts"
	"github.com/BTreeMap/LeadPipe/internal/dialogue"
	"github.com/BTreeMap/LeadPipe/internal/models"
	"github.com/BTreeMap/LeadPipe/internal/util"
)

// webhookErrorMessage is sent to the lead when an inbound message cannot be processed.
const webhookErrorMessage = "Sorry, I encountered an error. Please try again later."

type webhookStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type healthStatus struct {
	Status              string    `json:"status"`
	Timestamp           time.Time `json:"timestamp"`
	Service             string    `json:"service"`
	ActiveConversations int       `json:"active_conversations"`
}

type statsResult struct {
	dialogue.Stats
	Contacts  *models.ContactStats `json:"contacts,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

type serviceIndex struct {
	Service   string            `json:"service"`
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// webhookHandler handles POST /webhook. Twilio retries non-2xx answers, so
// processing failures still answer 200 with an apology message.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		writeTwiMLResponse(w, webhookErrorMessage)
		return
	}
	if s.validateSignature && !s.validSignature(r) {
		slog.Warn("Server.webhookHandler: invalid Twilio signature", "remote_addr", r.RemoteAddr)
		writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid request signature"))
		return
	}

	msg := models.InboundMessage{
		ID:          r.PostForm.Get("MessageSid"),
		From:        r.PostForm.Get("From"),
		To:          r.PostForm.Get("To"),
		Body:        strings.TrimSpace(r.PostForm.Get("Body")),
		ProfileName: strings.TrimSpace(r.PostForm.Get("ProfileName")),
		Time:        time.Now().Unix(),
	}
	slog.Info("Server.webhookHandler: inbound message", "from", util.RedactPhone(msg.From), "sid", msg.ID, "body_length", len(msg.Body))

	reply, err := s.inbound.Handle(r.Context(), msg)
	if err != nil {
		slog.Error("Server.webhookHandler: failed to handle message", "error", err, "from", util.RedactPhone(msg.From))
		writeTwiMLResponse(w, webhookErrorMessage)
		return
	}
	if reply.Duplicate {
		slog.Debug("Server.webhookHandler: duplicate delivery acknowledged", "sid", msg.ID)
	}
	writeTwiMLResponse(w, reply.Text)
}

func (s *Server) validSignature(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}
	return s.validator.Validate(s.webhookURL(r), params, signature)
}

// webhookURL is the URL Twilio signed: the configured public URL, or the
// request URL as seen through any proxy.
func (s *Server) webhookURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (s *Server) webhookStatusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Server.webhookStatusHandler: webhook verification requested")
	writeJSONResponse(w, http.StatusOK, webhookStatus{Status: "Webhook is active", Timestamp: time.Now()})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, healthStatus{
		Status:              "healthy",
		Timestamp:           time.Now(),
		Service:             ServiceName,
		ActiveConversations: s.conversations.Stats().Active,
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	res := statsResult{Stats: s.conversations.Stats(), Timestamp: time.Now()}
	if s.contacts != nil {
		cs, err := s.contacts.Stats(r.Context())
		if err != nil {
			slog.Error("Server.statsHandler: failed to read contact stats", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read contact statistics"))
			return
		}
		res.Contacts = &cs
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"webhook":       "/webhook",
		"health":        "/health",
		"stats":         "/stats",
		"conversations": "/conversations/{phone}",
	}
	if s.metrics != nil {
		endpoints["metrics"] = "/metrics"
	}
	writeJSONResponse(w, http.StatusOK, serviceIndex{
		Service:   ServiceName,
		Status:    "running",
		Version:   Version,
		Endpoints: endpoints,
	})
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.senderParam(w, r)
	if !ok {
		return
	}
	summary, err := s.conversations.Summary(r.Context(), sender)
	if err != nil {
		slog.Error("Server.getConversationHandler: failed to read conversation", "error", err, "sender", util.RedactPhone(sender))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read conversation"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(summary))
}

func (s *Server) resetConversationHandler(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.senderParam(w, r)
	if !ok {
		return
	}
	if err := s.conversations.Reset(r.Context(), sender); err != nil {
		slog.Error("Server.resetConversationHandler: failed to reset conversation", "error", err, "sender", util.RedactPhone(sender))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset conversation"))
		return
	}
	slog.Info("Server.resetConversationHandler: conversation reset", "sender", util.RedactPhone(sender))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation reset", nil))
}

// senderParam reads and normalizes the {sender} path parameter, writing a 400
// response when it is not a phone number.
func (s *Server) senderParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "sender"))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid phone number"))
		return "", false
	}
	sender, err := contacts.NormalizePhone(raw, s.countryCode)
	if err != nil {
		slog.Warn("Server.senderParam: invalid phone number", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid phone number"))
		return "", false
	}
	return sender, true
}
