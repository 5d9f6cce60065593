package workflow

import (
	"context"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/agent"
	"github.com/mirai-edu/tutorflow/plugin/llm"
	"github.com/mirai-edu/tutorflow/plugin/sessionlog"
)

const naturalSystemPrompt = "You are a friendly study companion. Answer briefly and helpfully."

// Chatter is the direct LLM surface used when no natural agent endpoint
// is configured. *llm.Provider is the production implementation.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// NaturalResult is the outcome of a natural-conversation turn.
type NaturalResult struct {
	Answer string `json:"answer"`
}

// NaturalWorkflow handles free conversation outside a tutoring session.
type NaturalWorkflow struct {
	caller  agent.Caller
	log     sessionlog.Log
	chatter Chatter
}

// NewNaturalWorkflow creates the natural-conversation workflow. chatter
// may be nil when a remote natural agent endpoint is configured.
func NewNaturalWorkflow(caller agent.Caller, log sessionlog.Log, chatter Chatter) *NaturalWorkflow {
	return &NaturalWorkflow{caller: caller, log: log, chatter: chatter}
}

// Run answers the question via the natural agent and records both sides
// of the exchange. When the natural agent has no configured endpoint,
// the direct LLM provider answers instead.
func (w *NaturalWorkflow) Run(ctx context.Context, sessionKey, question string) (*NaturalResult, error) {
	answer, err := w.ask(ctx, question)
	if err != nil {
		return nil, err
	}

	if err := w.log.Append(ctx, sessionKey, sessionlog.RoleUser, question, nil); err != nil {
		return nil, err
	}
	if err := w.log.Append(ctx, sessionKey, sessionlog.RoleAgent, answer, nil); err != nil {
		return nil, err
	}

	return &NaturalResult{Answer: answer}, nil
}

func (w *NaturalWorkflow) ask(ctx context.Context, question string) (string, error) {
	resp, err := w.caller.Call(ctx, profile.AgentNatural, map[string]any{
		"question": question,
	})
	if err == nil {
		return stringField(resp, "answer"), nil
	}
	if agent.CodeOf(err) == agent.ErrCodeUnknownService && w.chatter != nil {
		return w.chatter.Chat(ctx, []llm.Message{
			{Role: "system", Content: naturalSystemPrompt},
			{Role: "user", Content: question},
		})
	}
	return "", err
}
