package dialogue

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/genai"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// MaxClarificationRunes caps generated clarification text.
const MaxClarificationRunes = 500

// Clarification sources reported to the Recorder.
const (
	ClarifyGenerated = "generated"
	ClarifyFallback  = "fallback"
	ClarifyCapped    = "capped"
)

// clarify applies the bounded retry policy for an unclear reply. It never changes
// the current state. Each attempt under the cap consumes one retry whether or not
// a generator is configured.
func (e *Engine) clarify(ctx context.Context, conv *models.Conversation, stateID, userText, expected, fallback string) string {
	if conv.RetryCount >= e.doc.MaxRetries {
		e.recorder.ObserveClarification(ClarifyCapped)
		return fallback
	}
	conv.RetryCount++

	if e.clarifier == nil || !e.clarifier.Enabled() {
		e.recorder.ObserveClarification(ClarifyFallback)
		return fallback
	}

	out, err := e.generate(ctx, genai.ClarificationRequest{
		ProductHook:    e.doc.ProductHook,
		StateID:        stateID,
		UserText:       userText,
		ExpectedFormat: expected,
	})
	if err != nil {
		slog.Warn("Engine.clarify: generation failed, using static reply", "error", err, "state", stateID)
		e.recorder.ObserveClarification(ClarifyFallback)
		return fallback
	}
	out = truncateRunes(strings.TrimSpace(out), MaxClarificationRunes)
	if out == "" {
		e.recorder.ObserveClarification(ClarifyFallback)
		return fallback
	}
	e.recorder.ObserveClarification(ClarifyGenerated)
	return out
}

// generate calls the clarifier under the configured timeout, abandoning
// generators that ignore context cancellation.
func (e *Engine) generate(ctx context.Context, req genai.ClarificationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.clarifyTimeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := e.clarifier.Generate(ctx, req)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
