package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gemini "google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// ErrNoCandidates is returned when Gemini responds without any candidate.
var ErrNoCandidates = errors.New("no candidates returned")

// contentGenerator is the subset of the Gemini models service the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error)
}

// GeminiClient generates clarifications with Google Gemini.
type GeminiClient struct {
	models          contentGenerator
	model           string
	temperature     float32
	maxOutputTokens int32
}

// NewGeminiClient creates a Gemini client. The API key falls back to GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	cfg := Opts{
		Model:               DefaultGeminiModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	slog.Debug("genai.NewGeminiClient: Gemini client ready", "model", cfg.Model)
	return &GeminiClient{
		models:          client.Models,
		model:           cfg.Model,
		temperature:     float32(cfg.Temperature),
		maxOutputTokens: int32(cfg.MaxCompletionTokens),
	}, nil
}

// Enabled reports whether the client can generate text.
func (g *GeminiClient) Enabled() bool {
	return g != nil && g.models != nil
}

// Generate produces a clarification nudge for req.
func (g *GeminiClient) Generate(ctx context.Context, req ClarificationRequest) (string, error) {
	config := &gemini.GenerateContentConfig{
		SystemInstruction: &gemini.Content{Parts: []*gemini.Part{{Text: SystemPrompt}}},
		Temperature:       gemini.Ptr(g.temperature),
		MaxOutputTokens:   g.maxOutputTokens,
	}
	resp, err := g.models.GenerateContent(ctx, g.model, []*gemini.Content{
		{Parts: []*gemini.Part{{Text: req.Prompt()}}, Role: "user"},
	}, config)
	if err != nil {
		slog.Warn("GeminiClient.Generate: generation failed", "error", err, "model", g.model)
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
