// Package flow defines the Flow Document: the declarative graph of dialogue states
// and transition rules that drives a qualification conversation.
//
// A document is decoded once at startup into typed state variants and validated;
// the dialogue engine only ever reads it.
package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Defaults applied while decoding a document.
const (
	// DefaultGreetingNextState is used when the INITIAL greeting omits next_state.
	DefaultGreetingNextState = "AWAITING_INTEREST"
	// DefaultMaxRetries caps clarification attempts when error_handling.max_retries is absent.
	DefaultMaxRetries = 2
	// DefaultExpectedReply is the format hint passed to the clarification generator for yes/no gates.
	DefaultExpectedReply = "Reply with Yes or No"
	// DefaultClosingMessage is returned to senders who message after the conversation ended.
	DefaultClosingMessage = "Thank you! Your conversation has ended. Feel free to start a new conversation anytime."

	// NamePlaceholder is substituted with the sender's display name in greeting templates.
	NamePlaceholder = "{name}"
	// CalendlyPlaceholder is substituted with the scheduling link in qualified messages.
	CalendlyPlaceholder = "{calendly_link}"
)

// Kind is the closed set of state variants a document may declare.
type Kind int

const (
	KindGreeting Kind = iota + 1
	KindYesNo
	KindPrompt
	KindAnswer
	KindEvaluate
)

var kindNames = map[Kind]string{
	KindGreeting: "greeting",
	KindYesNo:    "yes_no",
	KindPrompt:   "prompt",
	KindAnswer:   "answer",
	KindEvaluate: "evaluate",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a document `type` tag to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown state type %q", s)
}

// Branch is a reply plus the state to move to.
type Branch struct {
	Message   string `mapstructure:"message"`
	NextState string `mapstructure:"next_state"`
}

// Greeting renders the first message of a conversation.
type Greeting struct {
	MessageTemplate string `mapstructure:"message_template"`
	NextState       string `mapstructure:"next_state"`
}

// YesNo is a gate that branches on positive or negative keywords.
type YesNo struct {
	PositiveKeywords []string `mapstructure:"positive_keywords"`
	NegativeKeywords []string `mapstructure:"negative_keywords"`
	OnPositive       Branch   `mapstructure:"on_positive"`
	OnNegative       Branch   `mapstructure:"on_negative"`
	OnUnclear        Branch   `mapstructure:"on_unclear"`
	ExpectedReply    string   `mapstructure:"expected_reply"`
}

// Prompt emits a static message and moves on unconditionally.
type Prompt struct {
	Message   string `mapstructure:"message"`
	NextState string `mapstructure:"next_state"`
}

// Choice maps a keyword set to the canonical value stored for it.
type Choice struct {
	Value    string   `mapstructure:"value"`
	Keywords []string `mapstructure:"keywords"`
}

// Numeric extracts the first run of digits and applies a minimum threshold.
type Numeric struct {
	Minimum        int    `mapstructure:"minimum"`
	OnBelowMinimum Branch `mapstructure:"on_below_minimum"`
}

// ValidBranch is taken when an answer is accepted.
// EvaluateNow runs the target evaluate state within the same request.
type ValidBranch struct {
	Message     string `mapstructure:"message"`
	NextState   string `mapstructure:"next_state"`
	EvaluateNow bool   `mapstructure:"evaluate_now"`
}

// Answer validates a reply against choices or a numeric rule and stores the canonical value.
type Answer struct {
	StoreAs   string      `mapstructure:"store_as"`
	Choices   []Choice    `mapstructure:"choices"`
	Numeric   *Numeric    `mapstructure:"numeric"`
	OnValid   ValidBranch `mapstructure:"on_valid"`
	OnInvalid Branch      `mapstructure:"on_invalid"`
}

// Rule is a single eligibility predicate over a stored answer field.
// Exactly one of Allowed (membership) or Minimum (threshold) is set.
type Rule struct {
	Field   string
	Allowed []string
	Minimum *int
}

// QualifiedBranch carries the template sent when every rule passes.
type QualifiedBranch struct {
	MessageTemplate string `mapstructure:"message_template"`
}

// Evaluate classifies the collected answers as qualified or disqualified.
type Evaluate struct {
	Rules          []Rule          `mapstructure:"-"`
	OnQualified    QualifiedBranch `mapstructure:"on_qualified"`
	OnNotQualified Branch          `mapstructure:"on_not_qualified"`
}

// State is one decoded state. Exactly the field matching Kind is non-nil.
type State struct {
	ID       string
	Kind     Kind
	Greeting *Greeting
	YesNo    *YesNo
	Prompt   *Prompt
	Answer   *Answer
	Evaluate *Evaluate
}

// Document is an immutable, validated flow.
type Document struct {
	States                map[string]*State
	CalendlyLink          string
	ProductHook           string
	MaxRetries            int
	TechnicalErrorMessage string
	ClosingMessage        string
}

// State looks up a state definition by identifier.
func (d *Document) State(id string) (*State, bool) {
	s, ok := d.States[id]
	return s, ok
}

// Initial returns the greeting state every conversation starts from.
func (d *Document) Initial() *Greeting {
	return d.States[models.StateInitial].Greeting
}

// RenderGreeting substitutes the display name into the INITIAL template,
// falling back to "there" when the name is empty.
func (d *Document) RenderGreeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "there"
	}
	return strings.ReplaceAll(d.Initial().MessageTemplate, NamePlaceholder, name)
}

// next returns every transition target declared by the state, for validation.
func (s *State) next() []string {
	switch s.Kind {
	case KindGreeting:
		return []string{s.Greeting.NextState}
	case KindYesNo:
		return []string{s.YesNo.OnPositive.NextState}
	case KindPrompt:
		return []string{s.Prompt.NextState}
	case KindAnswer:
		return []string{s.Answer.OnValid.NextState}
	default:
		return nil
	}
}
