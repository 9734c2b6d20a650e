package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ValidationError aggregates every problem found in a flow document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "flow validation failed: " + e.Problems[0]
	}
	return fmt.Sprintf("flow validation failed with %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) empty() bool {
	return len(e.Problems) == 0
}

// validate checks reserved states, required fields and transition targets.
func validate(doc *Document, verr *ValidationError) {
	if strings.TrimSpace(doc.TechnicalErrorMessage) == "" {
		verr.add("error_handling.technical_error_message is required")
	}
	if doc.MaxRetries < 0 {
		verr.add("error_handling.max_retries must be >= 0, got %d", doc.MaxRetries)
	}

	initial, ok := doc.States[models.StateInitial]
	switch {
	case !ok:
		verr.add("state %s is required", models.StateInitial)
	case initial.Kind != KindGreeting:
		verr.add("state %s must be a greeting, got %s", models.StateInitial, initial.Kind)
	}
	if _, ok := doc.States[models.StateEnd]; ok {
		verr.add("state %s is reserved and must not be defined", models.StateEnd)
	}

	for _, id := range sortedKeys(doc.States) {
		s := doc.States[id]
		if s.Kind == KindGreeting && id != models.StateInitial {
			verr.add("state %s: greeting is only allowed for %s", id, models.StateInitial)
		}
		validateState(doc, s, verr)
		for _, next := range s.next() {
			if next == "" {
				verr.add("state %s: next_state is required", id)
				continue
			}
			if next == models.StateInitial {
				verr.add("state %s: next_state must not be %s", id, models.StateInitial)
				continue
			}
			if _, ok := doc.States[next]; !ok && next != models.StateEnd {
				verr.add("state %s: next_state %q does not exist", id, next)
			}
		}
	}
}

func validateState(doc *Document, s *State, verr *ValidationError) {
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			verr.add("state %s: %s is required", s.ID, field)
		}
	}

	switch s.Kind {
	case KindGreeting:
		required("message_template", s.Greeting.MessageTemplate)

	case KindYesNo:
		y := s.YesNo
		if len(y.PositiveKeywords) == 0 {
			verr.add("state %s: positive_keywords must not be empty", s.ID)
		}
		if len(y.NegativeKeywords) == 0 {
			verr.add("state %s: negative_keywords must not be empty", s.ID)
		}
		required("on_positive.message", y.OnPositive.Message)
		required("on_negative.message", y.OnNegative.Message)
		required("on_unclear.message", y.OnUnclear.Message)
		if y.OnNegative.NextState != "" && y.OnNegative.NextState != models.StateEnd {
			verr.add("state %s: on_negative always ends the conversation, next_state must be omitted or %s", s.ID, models.StateEnd)
		}
		if y.OnUnclear.NextState != "" {
			verr.add("state %s: on_unclear must not declare next_state", s.ID)
		}

	case KindPrompt:
		required("message", s.Prompt.Message)

	case KindAnswer:
		a := s.Answer
		required("store_as", a.StoreAs)
		required("on_invalid.message", a.OnInvalid.Message)
		if a.OnInvalid.NextState != "" {
			verr.add("state %s: on_invalid must not declare next_state", s.ID)
		}
		hasChoices := len(a.Choices) > 0
		hasNumeric := a.Numeric != nil
		if hasChoices == hasNumeric {
			verr.add("state %s: exactly one of choices or numeric is required", s.ID)
		}
		for i, c := range a.Choices {
			if strings.TrimSpace(c.Value) == "" {
				verr.add("state %s: choices[%d].value is required", s.ID, i)
			}
			if len(c.Keywords) == 0 {
				verr.add("state %s: choices[%d].keywords must not be empty", s.ID, i)
			}
		}
		if hasNumeric {
			if a.Numeric.Minimum < 0 {
				verr.add("state %s: numeric.minimum must be >= 0", s.ID)
			}
			required("numeric.on_below_minimum.message", a.Numeric.OnBelowMinimum.Message)
		}
		if a.OnValid.EvaluateNow {
			target, ok := doc.States[a.OnValid.NextState]
			if !ok || target.Kind != KindEvaluate {
				verr.add("state %s: evaluate_now requires next_state to be an evaluate state", s.ID)
			}
		} else {
			required("on_valid.message", a.OnValid.Message)
		}

	case KindEvaluate:
		e := s.Evaluate
		if len(e.Rules) == 0 {
			verr.add("state %s: qualification_rules must not be empty", s.ID)
		}
		for _, r := range e.Rules {
			if r.Minimum == nil && len(r.Allowed) == 0 {
				verr.add("state %s: rule %s must list at least one allowed value", s.ID, r.Field)
			}
		}
		required("on_qualified.message_template", e.OnQualified.MessageTemplate)
		required("on_not_qualified.message", e.OnNotQualified.Message)
		if strings.Contains(e.OnQualified.MessageTemplate, CalendlyPlaceholder) && doc.CalendlyLink == "" {
			verr.add("state %s: on_qualified uses %s but calendly_link is empty", s.ID, CalendlyPlaceholder)
		}
	}
}
