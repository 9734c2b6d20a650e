package models

import (
	"encoding/json"
	"fmt"
)

// Reserved state identifiers that every flow understands.
const (
	// StateInitial is the state of a sender the engine has never greeted.
	StateInitial = "INITIAL"
	// StateEnd is the terminal state of a conversation.
	StateEnd = "END"
)

// Outcome is the final classification of a completed conversation.
// The zero value means the conversation has not concluded.
type Outcome string

const (
	OutcomeNone         Outcome = ""
	OutcomeQualified    Outcome = "qualified"
	OutcomeDisqualified Outcome = "disqualified"
)

// IsValid reports whether o is one of the known outcomes (including none).
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeNone, OutcomeQualified, OutcomeDisqualified:
		return true
	default:
		return false
	}
}

// MarshalJSON encodes OutcomeNone as null.
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o == OutcomeNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(o))
}

// UnmarshalJSON accepts null or one of the known outcome strings.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OutcomeNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v := Outcome(s)
	if !v.IsValid() {
		return fmt.Errorf("unknown outcome %q", s)
	}
	*o = v
	return nil
}

// Conversation is the per-sender dialogue state persisted between inbound messages.
type Conversation struct {
	CurrentState     string            `json:"current_state"`
	ConversationData map[string]string `json:"conversation_data"`
	MessageCount     int               `json:"message_count"`
	RetryCount       int               `json:"retry_count"`
	Outcome          Outcome           `json:"outcome"`
}

// NewConversation returns the state of a sender seen for the first time.
func NewConversation() *Conversation {
	return &Conversation{
		CurrentState:     StateInitial,
		ConversationData: make(map[string]string),
	}
}

// Clone returns a deep copy so callers never share the answer map.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.ConversationData = make(map[string]string, len(c.ConversationData))
	for k, v := range c.ConversationData {
		out.ConversationData[k] = v
	}
	return &out
}

// IsEnded reports whether the conversation has reached the terminal state.
func (c *Conversation) IsEnded() bool {
	return c.CurrentState == StateEnd
}

// Validate checks the structural invariants of a stored record.
func (c *Conversation) Validate() error {
	if c.CurrentState == "" {
		return fmt.Errorf("conversation record has empty current_state")
	}
	if c.MessageCount < 0 || c.RetryCount < 0 {
		return fmt.Errorf("conversation record has negative counters")
	}
	if !c.Outcome.IsValid() {
		return fmt.Errorf("conversation record has unknown outcome %q", c.Outcome)
	}
	return nil
}

// ConversationSummary is the public view of a conversation returned by the admin API.
type ConversationSummary struct {
	PhoneNumber  string            `json:"phone_number"`
	CurrentState string            `json:"current_state"`
	MessageCount int               `json:"message_count"`
	RetryCount   int               `json:"retry_count"`
	Outcome      Outcome           `json:"outcome"`
	Data         map[string]string `json:"data"`
}
