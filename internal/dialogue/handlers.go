package dialogue

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/flow"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

func (e *Engine) handleYesNo(ctx context.Context, conv *models.Conversation, state *flow.State, text string) string {
	gate := state.YesNo
	normalized := normalize(text)

	if containsAny(normalized, gate.PositiveKeywords) {
		conv.CurrentState = gate.OnPositive.NextState
		return gate.OnPositive.Message
	}
	if containsAny(normalized, gate.NegativeKeywords) {
		conv.CurrentState = models.StateEnd
		return gate.OnNegative.Message
	}
	return e.clarify(ctx, conv, state.ID, text, gate.ExpectedReply, gate.OnUnclear.Message)
}

func (e *Engine) handleAnswer(conv *models.Conversation, state *flow.State, text string) string {
	answer := state.Answer
	normalized := normalize(text)

	var value string
	switch {
	case answer.Numeric != nil:
		n, ok := firstNumber(normalized)
		if !ok {
			return answer.OnInvalid.Message
		}
		if n < answer.Numeric.Minimum {
			slog.Debug("Engine.handleAnswer: below minimum", "state", state.ID, "value", n, "minimum", answer.Numeric.Minimum)
			conv.ConversationData[answer.StoreAs] = strconv.Itoa(n)
			conv.CurrentState = models.StateEnd
			conv.Outcome = models.OutcomeDisqualified
			return answer.Numeric.OnBelowMinimum.Message
		}
		value = strconv.Itoa(n)
	default:
		choice, ok := matchChoice(normalized, answer.Choices)
		if !ok {
			return answer.OnInvalid.Message
		}
		value = choice
	}

	conv.ConversationData[answer.StoreAs] = value
	conv.CurrentState = answer.OnValid.NextState

	if answer.OnValid.EvaluateNow {
		next, ok := e.doc.State(answer.OnValid.NextState)
		if !ok || next.Kind != flow.KindEvaluate {
			return e.protocolError(conv, ErrUnknownState)
		}
		return e.evaluate(conv, next.Evaluate)
	}
	return answer.OnValid.Message
}

// evaluate classifies the collected answers and ends the conversation.
func (e *Engine) evaluate(conv *models.Conversation, ev *flow.Evaluate) string {
	conv.CurrentState = models.StateEnd
	if Qualifies(ev.Rules, conv.ConversationData) {
		conv.Outcome = models.OutcomeQualified
		return strings.ReplaceAll(ev.OnQualified.MessageTemplate, flow.CalendlyPlaceholder, e.doc.CalendlyLink)
	}
	conv.Outcome = models.OutcomeDisqualified
	return ev.OnNotQualified.Message
}
