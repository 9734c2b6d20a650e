package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePrompt_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("  Hello World \n")}
	client := &Client{chat: mock, model: DefaultModel, temperature: 0.1, maxCompletionTokens: 100}
	out, err := client.GeneratePrompt(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
	if mock.params.Model != DefaultModel {
		t.Errorf("expected model %s, got %s", DefaultModel, mock.params.Model)
	}
}

func TestGeneratePrompt_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGeneratePrompt_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GeneratePrompt(context.Background(), "sys", "usr")
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGenerate_UsesClarificationPrompt(t *testing.T) {
	mock := &mockChatService{resp: completion("Could you reply Yes or No? For example: Yes")}
	client := &Client{chat: mock, model: DefaultModel}
	out, err := client.Generate(context.Background(), ClarificationRequest{
		ProductHook:    "UAE home loans",
		StateID:        "AWAITING_INTEREST",
		UserText:       "maybe later?",
		ExpectedFormat: "Reply with Yes or No",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(out, "Could you reply") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestClient_Enabled(t *testing.T) {
	var nilClient *Client
	if nilClient.Enabled() {
		t.Error("nil client must not be enabled")
	}
	if !(&Client{chat: &mockChatService{}}).Enabled() {
		t.Error("client with chat service must be enabled")
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	key := "test-key"
	cli, err := NewClient(WithAPIKey(key), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil || cli.model != "gpt-4o" {
		t.Errorf("expected client with model override, got %+v", cli)
	}
	if cli.maxCompletionTokens != DefaultMaxCompletionTokens {
		t.Errorf("expected default max tokens, got %d", cli.maxCompletionTokens)
	}
}

func TestClarificationRequest_Prompt(t *testing.T) {
	p := ClarificationRequest{
		ProductHook:    "UAE home loans",
		StateID:        "AWAITING_INTEREST",
		UserText:       "  what is this  ",
		ExpectedFormat: "Reply with Yes or No",
	}.Prompt()

	for _, want := range []string{
		"Context: UAE home loans",
		"State: AWAITING_INTEREST",
		`User said: "what is this"`,
		"Expected reply: Reply with Yes or No",
		"1 short example",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}
