// Package gate implements the safety and intent classification step that
// every inbound message passes before being dispatched to a workflow.
// The remote guardrails agent flags harmful content and labels the
// message; the gate normalizes the answer into an allow/deny decision
// plus a canonical intent.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mirai-edu/tutorflow/plugin/agent"
)

// ServiceName is the agent the gate consults.
const ServiceName = "guardrails"

// ErrMalformedResponse indicates the classifier answer could not be
// normalized into an assessment object. Callers must treat the whole
// message as blocked.
var ErrMalformedResponse = errors.New("malformed guardrails response")

// classToIntent maps classifier labels to canonical intents. Unmapped
// labels yield no intent and hence a deny decision.
var classToIntent = map[string]string{
	"sessao_de_estudos":  "class_session",
	"conversa_com_query": "normal_session",
	"conversa_sem_query": "normal_session",
}

// jsonBlockRegex extracts the first complete brace-delimited block from
// a string payload, with or without a ```json fence around it.
var jsonBlockRegex = regexp.MustCompile(`(?s)\{.*\}`)

// Decision is the outcome of gating one message. It is a transient
// routing artifact and is never persisted.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Intent  string         `json:"intent,omitempty"`
	Reason  string         `json:"reason"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// Gate classifies inbound messages through the guardrails agent.
type Gate struct {
	caller agent.Caller
}

// New creates a gate backed by the given agent caller.
func New(caller agent.Caller) *Gate {
	return &Gate{caller: caller}
}

// Evaluate sends the message to the guardrails agent and normalizes the
// answer. Allowed is true iff the content is not flagged harmful and the
// classification maps to a known intent.
func (g *Gate) Evaluate(ctx context.Context, text, requesterID, sessionKey string, reqContext map[string]any) (*Decision, error) {
	payload := map[string]any{"question": text}
	if requesterID != "" {
		payload["user_id"] = requesterID
	}
	if sessionKey != "" {
		payload["session_id"] = sessionKey
	}
	if reqContext != nil {
		payload["context"] = reqContext
	}

	resp, err := g.caller.Call(ctx, ServiceName, payload)
	if err != nil {
		return nil, err
	}

	assessment, err := decodeAssessment(resp)
	if err != nil {
		return nil, err
	}

	harmful, err := harmfulFlag(assessment)
	if err != nil {
		return nil, err
	}
	label := classificationLabel(assessment)
	intent := classToIntent[label]

	decision := &Decision{
		Allowed: !harmful && intent != "",
		Intent:  intent,
		Raw:     assessment,
	}
	switch {
	case harmful:
		decision.Reason = "Harmful question detected."
	case intent == "":
		decision.Reason = fmt.Sprintf("Unmapped classification %q.", label)
	default:
		decision.Reason = fmt.Sprintf("Classification %q mapped to intent %q.", label, intent)
	}

	slog.Debug("gate decision",
		"allowed", decision.Allowed,
		"intent", decision.Intent,
		"classification", label)
	return decision, nil
}

// decodeAssessment normalizes the classifier response into the inner
// assessment object. Accepted shapes: {"assessment": {...}}, a flat
// object, or a string containing an embedded JSON block.
func decodeAssessment(resp map[string]any) (map[string]any, error) {
	if inner, ok := resp["assessment"]; ok {
		switch v := inner.(type) {
		case map[string]any:
			return normalizeFields(v), nil
		case string:
			return parseEmbedded(v)
		default:
			return nil, fmt.Errorf("%w: assessment has type %T", ErrMalformedResponse, inner)
		}
	}
	if raw, ok := resp["raw"].(string); ok && len(resp) == 1 {
		return parseEmbedded(raw)
	}
	return normalizeFields(resp), nil
}

// parseEmbedded extracts and decodes a JSON block embedded in free text.
func parseEmbedded(s string) (map[string]any, error) {
	text := s
	if m := jsonBlockRegex.FindString(s); m != "" {
		text = m
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if inner, ok := decoded["assessment"].(map[string]any); ok {
		return normalizeFields(inner), nil
	}
	return normalizeFields(decoded), nil
}

// normalizeFields applies the one-time compatibility rule for the
// historical misspelled harmful-flag field name.
func normalizeFields(assessment map[string]any) map[string]any {
	if v, ok := assessment["pergunta_nocisva"]; ok {
		if _, exists := assessment["pergunta_nociva"]; !exists {
			assessment["pergunta_nociva"] = v
		}
		delete(assessment, "pergunta_nocisva")
	}
	return assessment
}

func harmfulFlag(assessment map[string]any) (bool, error) {
	v, ok := assessment["pergunta_nociva"]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: pergunta_nociva has type %T", ErrMalformedResponse, v)
	}
	return b, nil
}

func classificationLabel(assessment map[string]any) string {
	s, _ := assessment["classificacao_pergunta"].(string)
	return strings.ToLower(strings.TrimSpace(s))
}
