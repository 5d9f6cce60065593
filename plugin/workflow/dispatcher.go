package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/agent"
)

const defaultSessionKey = "default_session"

// defaultIntentWorkflows maps canonical intents to local workflows.
// Local workflows always win over agent fallbacks.
var defaultIntentWorkflows = map[string]string{
	"normal_session": "normal_session",
	"class_session":  "class_session",
	"generate_query": "generate_query",
	"generate_sql":   "generate_query", // compatibility alias
}

// defaultIntentAgents maps intents to fallback agents, used only when
// no local workflow is registered for the intent.
var defaultIntentAgents = map[string]string{
	"normal_session": profile.AgentNatural,
	"class_session":  profile.AgentProfessor,
}

// Result is the uniform envelope every dispatch returns.
type Result struct {
	Status   string `json:"status"` // ok | error
	Workflow string `json:"workflow,omitempty"`
	Payload  any    `json:"result,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Dispatcher routes a gated intent to its workflow. It never returns a
// Go error; failures are reported inside the Result envelope so the
// boundary layer can always produce a response.
type Dispatcher struct {
	caller    agent.Caller
	sessions  *SessionWorkflow
	natural   *NaturalWorkflow
	analytics *AnalyticsWorkflow

	intentWorkflows map[string]string
	intentAgents    map[string]string
}

// NewDispatcher creates a dispatcher over the given workflows.
func NewDispatcher(caller agent.Caller, sessions *SessionWorkflow, natural *NaturalWorkflow, analytics *AnalyticsWorkflow) *Dispatcher {
	return &Dispatcher{
		caller:          caller,
		sessions:        sessions,
		natural:         natural,
		analytics:       analytics,
		intentWorkflows: defaultIntentWorkflows,
		intentAgents:    defaultIntentAgents,
	}
}

// Execute runs the workflow registered for intent, or falls back to a
// generic agent call, or reports the unmapped intent.
func (d *Dispatcher) Execute(ctx context.Context, intent, text string, reqContext map[string]any, requesterID, sessionKey string) *Result {
	if sessionKey == "" {
		sessionKey = defaultSessionKey
	}

	switch d.intentWorkflows[intent] {
	case "normal_session":
		res, err := d.natural.Run(ctx, sessionKey, text)
		return envelope("normal_session", res, err)

	case "class_session":
		studentID, err := studentIDFromContext(reqContext)
		if err != nil {
			studentID = "generic_student"
		}
		res, err := d.sessions.RunTurn(ctx, studentID, text, sessionKey)
		return envelope("class_session", res, err)

	case "generate_query":
		res, err := d.analytics.Run(ctx, text, reqContext)
		return envelope("generate_query", res, err)
	}

	agentName, ok := d.intentAgents[intent]
	if !ok {
		return &Result{
			Status: "error",
			Err:    fmt.Sprintf("no workflow or agent mapped for intent %q", intent),
		}
	}

	slog.Debug("dispatching to fallback agent", "intent", intent, "agent", agentName)
	payload := map[string]any{
		"question": text,
		"metadata": map[string]any{"intent": intent},
	}
	if requesterID != "" {
		payload["user_id"] = requesterID
	}
	if sessionKey != "" {
		payload["session_id"] = sessionKey
	}
	if reqContext != nil {
		payload["context"] = reqContext
	}
	res, err := d.caller.Call(ctx, agentName, payload)
	return envelope(intent, res, err)
}

func envelope(workflow string, payload any, err error) *Result {
	if err != nil {
		return &Result{Status: "error", Workflow: workflow, Err: err.Error()}
	}
	return &Result{Status: "ok", Workflow: workflow, Payload: payload}
}
