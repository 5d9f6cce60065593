package workflow

import (
	"context"

	"github.com/mirai-edu/tutorflow/plugin/gate"
)

// Final is the condensed outcome of handling one message.
type Final struct {
	Status  string `json:"status"` // blocked | ok | error
	Message string `json:"message,omitempty"`
}

// MessageResult is the full pipeline outcome returned to the boundary.
type MessageResult struct {
	Gate     *gate.Decision `json:"gate"`
	Dispatch *Result        `json:"dispatch,omitempty"`
	Final    Final          `json:"final"`
}

// Pipeline is the upward interface of the message-handling core:
// gate → dispatch → workflow.
type Pipeline struct {
	gate       *gate.Gate
	dispatcher *Dispatcher
}

// NewPipeline creates the message pipeline.
func NewPipeline(g *gate.Gate, d *Dispatcher) *Pipeline {
	return &Pipeline{gate: g, dispatcher: d}
}

// HandleMessage gates the message and, if allowed, dispatches it to the
// intent's workflow. A gate hard error (malformed classifier response,
// exhausted retries) propagates; the caller must treat the whole
// message as blocked.
func (p *Pipeline) HandleMessage(ctx context.Context, text, requesterID, sessionKey string, reqContext map[string]any) (*MessageResult, error) {
	decision, err := p.gate.Evaluate(ctx, text, requesterID, sessionKey, reqContext)
	if err != nil {
		return nil, err
	}

	out := &MessageResult{Gate: decision}
	if !decision.Allowed || decision.Intent == "" {
		out.Final = Final{Status: "blocked", Message: decision.Reason}
		return out, nil
	}

	res := p.dispatcher.Execute(ctx, decision.Intent, text, reqContext, requesterID, sessionKey)
	out.Dispatch = res
	if res.Status == "ok" {
		out.Final = Final{Status: "ok"}
	} else {
		out.Final = Final{Status: "error", Message: res.Err}
	}
	return out, nil
}
