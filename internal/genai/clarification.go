package genai

import (
	"fmt"
	"strings"
)

// SystemPrompt constrains every clarification generator.
const SystemPrompt = "You are a concise, helpful mortgage assistant. " +
	"Respond politely in <= 2 sentences. " +
	"Do not invent policy or eligibility outcomes. " +
	"Gently guide the user to answer the expected input. " +
	"Avoid links unless provided."

// ClarificationRequest describes an unclear reply and what the state expected instead.
type ClarificationRequest struct {
	ProductHook    string
	StateID        string
	UserText       string
	ExpectedFormat string
}

// Prompt renders the user prompt sent to the model.
func (r ClarificationRequest) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s\n", strings.TrimSpace(r.ProductHook))
	fmt.Fprintf(&b, "State: %s\n", r.StateID)
	fmt.Fprintf(&b, "User said: %q\n", strings.TrimSpace(r.UserText))
	fmt.Fprintf(&b, "Expected reply: %s\n", r.ExpectedFormat)
	b.WriteString("Write a friendly clarification that restates the question and gives 1 short example of a valid reply.")
	return b.String()
}
