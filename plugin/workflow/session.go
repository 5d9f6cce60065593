// Package workflow contains the conversational workflows the pipeline
// dispatches to: the ongoing tutoring session (online turn + finalize),
// the natural-conversation flow and the local analytics flow, plus the
// intent dispatcher and the top-level message pipeline that ties them
// together.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/agent"
	"github.com/mirai-edu/tutorflow/plugin/batch"
	"github.com/mirai-edu/tutorflow/plugin/sessionlog"
	"github.com/mirai-edu/tutorflow/store"
)

// ErrEmptyHistory indicates finalize was called for a session with no
// recorded turns. It is raised before any remote call.
var ErrEmptyHistory = errors.New("no history found for this session")

// emptyHistoryPlaceholder is sent to the evaluator when the session
// contains no user-authored turns; the evaluator must never receive a
// blank payload.
const emptyHistoryPlaceholder = "No student utterances recorded in this session."

const (
	// chunkEvalAttempts is the local retry budget per evaluation chunk,
	// on top of the agent client's own retries. A chunk that fails all
	// attempts contributes an empty evaluation instead of aborting the
	// whole finalize.
	chunkEvalAttempts = 2

	// topicSummaryMaxLen caps the fallback record topic built from the
	// aggregated evaluation when the planner returns an empty plan.
	topicSummaryMaxLen = 300

	litePlanPrompt = "Generate an ultra-compact lesson plan (max ~120-150 words) in 5-7 bullets. " +
		"Focus on objectives, essential topics, practical activity, and comprehension check. " +
		"Avoid long text; keep bullets short."

	consolidatedPlanPrompt = "Based on the student's points below, generate a compact plan (max ~150-200 words) " +
		"in short bullets (5-8 items), including: 1) objectives, 2) essential topics, " +
		"3) practical activity, 4) simple evaluation, 5) next steps."
)

// TurnResult is the outcome of one online tutoring turn.
type TurnResult struct {
	Plan   string `json:"plan"`
	Lesson string `json:"lesson"`
}

// FinalizeResult is the outcome of finalizing a tutoring session.
type FinalizeResult struct {
	Status     string           `json:"status"`
	RecordUID  string           `json:"record_uid"`
	Evaluation batch.Evaluation `json:"evaluation"`
	Plan       string           `json:"plan"`
}

// SessionWorkflow runs the ongoing tutoring session state machine.
type SessionWorkflow struct {
	caller agent.Caller
	log    sessionlog.Log
	store  *store.Store

	// chunkRetryWait is the base wait between local chunk retries,
	// doubled per attempt. Shortened in tests.
	chunkRetryWait time.Duration
}

// NewSessionWorkflow creates the tutoring session workflow.
func NewSessionWorkflow(caller agent.Caller, log sessionlog.Log, st *store.Store) *SessionWorkflow {
	return &SessionWorkflow{
		caller:         caller,
		log:            log,
		store:          st,
		chunkRetryWait: 2 * time.Second,
	}
}

// RunTurn executes one online tutoring turn: record the question, ask
// the planner for a lite plan, then ask the professor for the lesson.
// The two agent calls are sequential; the professor needs the plan. A
// failure in either call propagates, but turns already appended stay in
// the log.
func (w *SessionWorkflow) RunTurn(ctx context.Context, studentID, question, sessionKey string) (*TurnResult, error) {
	if err := w.log.Append(ctx, sessionKey, sessionlog.RoleUser, question, nil); err != nil {
		return nil, err
	}

	plannerResp, err := w.caller.Call(ctx, profile.AgentPlanner, map[string]any{
		"question": litePlanPrompt,
		"topic":    "Personalized lesson",
		"context":  "Student's last question: " + question,
	})
	if err != nil {
		return nil, err
	}
	plan := stringField(plannerResp, "plan")

	if err := w.log.Append(ctx, sessionKey, sessionlog.RoleAgent, "[PLAN]\n"+plan, nil); err != nil {
		return nil, err
	}

	professorResp, err := w.caller.Call(ctx, profile.AgentProfessor, map[string]any{
		"question": question,
		"plan":     plan,
	})
	if err != nil {
		return nil, err
	}
	lesson := stringField(professorResp, "lesson")

	if err := w.log.Append(ctx, sessionKey, sessionlog.RoleAgent, "[PROFESSOR]\n"+lesson, nil); err != nil {
		return nil, err
	}

	return &TurnResult{Plan: plan, Lesson: lesson}, nil
}

// Finalize closes a tutoring session: evaluate the student's whole
// history in chunks, aggregate, generate a consolidated plan, persist
// the durable record and clear the session log. The record is committed
// before the log is cleared, so a crash in between at worst re-clears
// an already-empty log on retry.
func (w *SessionWorkflow) Finalize(ctx context.Context, studentID, sessionKey string) (*FinalizeResult, error) {
	history, err := w.log.ReadAll(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	userText := userOnlyText(history)
	if userText == "" {
		userText = emptyHistoryPlaceholder
	}

	chunks := batch.Chunk(userText, batch.DefaultChunkSize, batch.DefaultChunkOverlap)
	slog.Debug("evaluating session history",
		"session", sessionKey,
		"chars", len(userText),
		"chunks", len(chunks))

	evals := make([]batch.Evaluation, 0, len(chunks))
	for i, chunk := range chunks {
		evals = append(evals, w.evaluateChunk(ctx, i+1, len(chunks), chunk))
	}
	aggregated := batch.MergeEvaluations(evals)

	plannerResp, err := w.caller.Call(ctx, profile.AgentPlanner, map[string]any{
		"question": consolidatedPlanPrompt,
		"topic":    "Consolidated session plan",
		"context": batch.Flatten("Strong points: " + aggregated.StrongPoints +
			"\nWeak points: " + aggregated.WeakPoints +
			"\nComments: " + aggregated.GeneralComments),
	})
	if err != nil {
		return nil, err
	}
	plan := stringField(plannerResp, "plan")

	// An empty plan still yields a searchable topic on the record.
	topic := strings.TrimSpace(plan)
	if topic == "" {
		topic = batch.SessionSummary(aggregated, lastUserTurn(history), topicSummaryMaxLen)
	}

	record, err := w.store.CreateSessionRecord(ctx, &store.SessionRecord{
		StudentID:       studentID,
		StrongPoints:    aggregated.StrongPoints,
		WeakPoints:      aggregated.WeakPoints,
		GeneralComments: aggregated.GeneralComments,
		Topic:           topic,
	})
	if err != nil {
		return nil, err
	}

	// Clearing is idempotent; a failure here leaves an expiring log
	// behind but never loses the committed record.
	if err := w.log.Clear(ctx, sessionKey); err != nil {
		slog.Warn("failed to clear session log after finalize",
			"session", sessionKey,
			"record_uid", record.UID,
			"error", err)
	}

	return &FinalizeResult{
		Status:     "finalized",
		RecordUID:  record.UID,
		Evaluation: aggregated,
		Plan:       plan,
	}, nil
}

// evaluateChunk sends one chunk to the evaluator with a short local
// retry budget. All failures fall back to an empty evaluation so one
// bad chunk cannot discard the others.
func (w *SessionWorkflow) evaluateChunk(ctx context.Context, idx, total int, chunk string) batch.Evaluation {
	var lastErr error
	for attempt := 1; attempt <= chunkEvalAttempts; attempt++ {
		resp, err := w.caller.Call(ctx, profile.AgentEvaluator, map[string]any{
			"question": chunk,
		})
		if err == nil {
			return batch.Evaluation{
				StrongPoints:    strings.TrimSpace(stringField(resp, "strong_points")),
				WeakPoints:      strings.TrimSpace(stringField(resp, "weak_points")),
				GeneralComments: strings.TrimSpace(stringField(resp, "general_comments")),
			}
		}
		lastErr = err
		if attempt < chunkEvalAttempts {
			wait := w.chunkRetryWait << uint(attempt-1)
			slog.Warn("evaluator failed on chunk, retrying",
				"chunk", idx,
				"total", total,
				"attempt", attempt,
				"wait", wait,
				"error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
	}

	slog.Warn("evaluator failed on chunk, using empty evaluation",
		"chunk", idx,
		"total", total,
		"error", lastErr)
	return batch.Evaluation{}
}

// lastUserTurn returns the content of the most recent user-authored
// turn, or "".
func lastUserTurn(history []sessionlog.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if strings.EqualFold(history[i].Role, sessionlog.RoleUser) {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}

// userOnlyText concatenates the content of user-authored turns to keep
// evaluator payloads free of agent noise.
func userOnlyText(history []sessionlog.Turn) string {
	var parts []string
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if strings.EqualFold(turn.Role, sessionlog.RoleUser) && content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n")
}

// stringField reads a string field from an agent response, falling back
// to the wrapped raw body when the agent answered with plain text.
func stringField(resp map[string]any, key string) string {
	if s, ok := resp[key].(string); ok {
		return s
	}
	if s, ok := resp["raw"].(string); ok {
		return s
	}
	return ""
}
