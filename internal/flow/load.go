package flow

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// minimumSuffix marks a threshold predicate in qualification_rules.
const minimumSuffix = "_minimum"

// documentFile is the top-level shape of a flow file.
type documentFile struct {
	States         map[string]map[string]interface{} `yaml:"states"`
	CalendlyLink   string                            `yaml:"calendly_link"`
	ProductHook    string                            `yaml:"product_hook"`
	ClosingMessage string                            `yaml:"closing_message"`
	ErrorHandling  struct {
		MaxRetries            *int   `yaml:"max_retries"`
		TechnicalErrorMessage string `yaml:"technical_error_message"`
	} `yaml:"error_handling"`
}

// ResolvePath returns the flow file to load: override when set, otherwise
// <dir>/<product>.flow.json, falling back to <dir>/<product>.flow.yaml.
func ResolvePath(dir, product, override string) string {
	if override != "" {
		return override
	}
	candidates := []string{
		filepath.Join(dir, product+".flow.json"),
		filepath.Join(dir, product+".flow.yaml"),
		filepath.Join(dir, product+".flow.yml"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return candidates[0]
}

// Load reads, decodes and validates the flow document at path.
func Load(path string) (*Document, error) {
	slog.Debug("flow.Load: reading flow document", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow document %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid flow document %s: %w", path, err)
	}
	slog.Info("flow.Load: flow document loaded", "path", path, "states", len(doc.States))
	return doc, nil
}

// Parse decodes a YAML or JSON flow document and validates it.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw documentFile
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse flow document: %w", err)
	}

	doc := &Document{
		States:                make(map[string]*State, len(raw.States)),
		CalendlyLink:          strings.TrimSpace(raw.CalendlyLink),
		ProductHook:           strings.TrimSpace(raw.ProductHook),
		MaxRetries:            DefaultMaxRetries,
		TechnicalErrorMessage: raw.ErrorHandling.TechnicalErrorMessage,
		ClosingMessage:        raw.ClosingMessage,
	}
	if raw.ErrorHandling.MaxRetries != nil {
		doc.MaxRetries = *raw.ErrorHandling.MaxRetries
	}
	if doc.ClosingMessage == "" {
		doc.ClosingMessage = DefaultClosingMessage
	}

	verr := &ValidationError{}
	for _, id := range sortedKeys(raw.States) {
		state, err := decodeState(id, raw.States[id])
		if err != nil {
			verr.add("state %s: %v", id, err)
			continue
		}
		doc.States[id] = state
	}
	if verr.empty() {
		validate(doc, verr)
	}
	if !verr.empty() {
		return nil, verr
	}
	return doc, nil
}

func decodeState(id string, fields map[string]interface{}) (*State, error) {
	if fields == nil {
		return nil, errors.New("empty definition")
	}
	tag, ok := fields["type"].(string)
	if !ok {
		return nil, errors.New("missing type")
	}
	kind, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}

	body := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k != "type" {
			body[k] = v
		}
	}

	state := &State{ID: id, Kind: kind}
	switch kind {
	case KindGreeting:
		state.Greeting = &Greeting{}
		err = strictDecode(body, state.Greeting)
		if err == nil && state.Greeting.NextState == "" {
			state.Greeting.NextState = DefaultGreetingNextState
		}
	case KindYesNo:
		state.YesNo = &YesNo{}
		err = strictDecode(body, state.YesNo)
		if err == nil {
			state.YesNo.PositiveKeywords = normalizeKeywords(state.YesNo.PositiveKeywords)
			state.YesNo.NegativeKeywords = normalizeKeywords(state.YesNo.NegativeKeywords)
			if state.YesNo.ExpectedReply == "" {
				state.YesNo.ExpectedReply = DefaultExpectedReply
			}
		}
	case KindPrompt:
		state.Prompt = &Prompt{}
		err = strictDecode(body, state.Prompt)
	case KindAnswer:
		state.Answer = &Answer{}
		err = strictDecode(body, state.Answer)
		if err == nil {
			for i := range state.Answer.Choices {
				state.Answer.Choices[i].Keywords = normalizeKeywords(state.Answer.Choices[i].Keywords)
			}
		}
	case KindEvaluate:
		state.Evaluate, err = decodeEvaluate(body)
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func decodeEvaluate(body map[string]interface{}) (*Evaluate, error) {
	rules, _ := body["qualification_rules"].(map[string]interface{})
	rest := make(map[string]interface{}, len(body))
	for k, v := range body {
		if k != "qualification_rules" {
			rest[k] = v
		}
	}

	ev := &Evaluate{}
	if err := strictDecode(rest, ev); err != nil {
		return nil, err
	}
	if _, present := body["qualification_rules"]; present && rules == nil {
		return nil, errors.New("qualification_rules must be a mapping")
	}

	for _, key := range sortedKeys(rules) {
		if strings.HasSuffix(key, minimumSuffix) {
			var threshold int
			if err := mapstructure.Decode(rules[key], &threshold); err != nil {
				return nil, fmt.Errorf("rule %s: expected an integer: %w", key, err)
			}
			ev.Rules = append(ev.Rules, Rule{Field: strings.TrimSuffix(key, minimumSuffix), Minimum: &threshold})
			continue
		}
		var allowed []string
		if err := mapstructure.Decode(rules[key], &allowed); err != nil {
			return nil, fmt.Errorf("rule %s: expected a list of values: %w", key, err)
		}
		ev.Rules = append(ev.Rules, Rule{Field: key, Allowed: allowed})
	}
	return ev, nil
}

// strictDecode decodes a generic mapping into out, rejecting unknown keys.
func strictDecode(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
