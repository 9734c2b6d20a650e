package genai

import (
	"context"
	"errors"
	"testing"

	gemini "google.golang.org/genai"
)

type mockContentGenerator struct {
	resp   *gemini.GenerateContentResponse
	err    error
	model  string
	config *gemini.GenerateContentConfig
}

func (m *mockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error) {
	m.model = model
	m.config = config
	return m.resp, m.err
}

func candidate(parts ...string) *gemini.GenerateContentResponse {
	content := &gemini.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &gemini.Part{Text: p})
	}
	return &gemini.GenerateContentResponse{Candidates: []*gemini.Candidate{{Content: content}}}
}

func TestGeminiClient_Generate(t *testing.T) {
	mock := &mockContentGenerator{resp: candidate("Please reply Yes or No. ", "For example: Yes ")}
	g := &GeminiClient{models: mock, model: DefaultGeminiModel, temperature: 0.4, maxOutputTokens: 150}

	out, err := g.Generate(context.Background(), ClarificationRequest{StateID: "AWAITING_INTEREST", UserText: "hmm"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Please reply Yes or No. For example: Yes" {
		t.Errorf("unexpected output %q", out)
	}
	if mock.model != DefaultGeminiModel {
		t.Errorf("expected model %s, got %s", DefaultGeminiModel, mock.model)
	}
	if mock.config == nil || mock.config.SystemInstruction == nil || mock.config.SystemInstruction.Parts[0].Text != SystemPrompt {
		t.Error("expected system instruction to carry the guardrail prompt")
	}
}

func TestGeminiClient_Errors(t *testing.T) {
	g := &GeminiClient{models: &mockContentGenerator{err: errors.New("quota")}}
	if _, err := g.Generate(context.Background(), ClarificationRequest{}); err == nil {
		t.Error("expected error from service")
	}

	g = &GeminiClient{models: &mockContentGenerator{resp: &gemini.GenerateContentResponse{}}}
	if _, err := g.Generate(context.Background(), ClarificationRequest{}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestNewGeminiClient_NoKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewGeminiClient(context.Background()); err == nil {
		t.Error("expected error when API key not provided")
	}
}

func TestGeminiClient_Enabled(t *testing.T) {
	var g *GeminiClient
	if g.Enabled() {
		t.Error("nil client must not be enabled")
	}
}
