package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mirai-edu/tutorflow/store"
)

// ErrMissingStudentID indicates an analytics question arrived without a
// student identifier in the request context.
var ErrMissingStudentID = errors.New("missing student id in context for individual queries")

var (
	lastSessionRegex = regexp.MustCompile(`\bmy\b.*\blast\b.*\bsession\b`)
	summaryRegex     = regexp.MustCompile(`\b(summary|summarize)\b.*\b(my|of my)\b.*\bsessions?\b`)
	pointsRegex      = regexp.MustCompile(`\bmy\b.*\b(strengths|weaknesses|strong points|weak points)\b`)
	themesRegex      = regexp.MustCompile(`\b(themes?|topics?)\b.*\b(frequent|most frequent|recurring|most studied)\b`)
	topNRegex        = regexp.MustCompile(`\b(\d+)\b`)
)

// AnalyticsResult is the tabular answer of an analytics query.
type AnalyticsResult struct {
	Kind    string         `json:"kind"`
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Meta    map[string]any `json:"meta"`
}

// AnalyticsWorkflow answers individual analytical questions about a
// student's past sessions directly from the durable record store, with
// no remote agent involved.
type AnalyticsWorkflow struct {
	store *store.Store
}

// NewAnalyticsWorkflow creates the local analytics workflow.
func NewAnalyticsWorkflow(st *store.Store) *AnalyticsWorkflow {
	return &AnalyticsWorkflow{store: st}
}

// Run matches the question against the supported query shapes and
// answers from stored session records. Supported: "my last session",
// "summary of my sessions (N)", "my strengths/weaknesses (N)",
// "most frequent themes (N)".
func (w *AnalyticsWorkflow) Run(ctx context.Context, question string, reqContext map[string]any) (*AnalyticsResult, error) {
	text := strings.ToLower(strings.TrimSpace(question))

	switch {
	case lastSessionRegex.MatchString(text):
		return w.lastSession(ctx, reqContext)
	case summaryRegex.MatchString(text):
		return w.sessionsSummary(ctx, reqContext, parseTopN(text, 5))
	case pointsRegex.MatchString(text):
		return w.myPoints(ctx, reqContext, parseTopN(text, 5))
	case themesRegex.MatchString(text):
		return w.topThemes(ctx, reqContext, parseTopN(text, 5))
	}

	return nil, fmt.Errorf("unsupported analytics query: examples: 'my last session', "+
		"'summary of my sessions (5)', 'my strengths', 'most frequent themes (3)'; got %q", question)
}

func (w *AnalyticsWorkflow) lastSession(ctx context.Context, reqContext map[string]any) (*AnalyticsResult, error) {
	studentID, err := studentIDFromContext(reqContext)
	if err != nil {
		return nil, err
	}
	records, err := w.lastRecords(ctx, studentID, 1)
	if err != nil {
		return nil, err
	}

	result := &AnalyticsResult{
		Kind:    "last_session",
		Columns: []string{"uid", "topic", "strong_points", "weak_points", "general_comments", "created_ts"},
		Meta:    map[string]any{"student_id": studentID, "found": len(records)},
	}
	for _, r := range records {
		result.Rows = append(result.Rows, []any{r.UID, r.Topic, r.StrongPoints, r.WeakPoints, r.GeneralComments, r.CreatedTs})
	}
	return result, nil
}

func (w *AnalyticsWorkflow) sessionsSummary(ctx context.Context, reqContext map[string]any, topN int) (*AnalyticsResult, error) {
	studentID, err := studentIDFromContext(reqContext)
	if err != nil {
		return nil, err
	}
	records, err := w.lastRecords(ctx, studentID, topN)
	if err != nil {
		return nil, err
	}

	result := &AnalyticsResult{
		Kind:    "sessions_summary",
		Columns: []string{"created_ts", "topic", "strong_points", "weak_points", "general_comments"},
		Meta:    map[string]any{"student_id": studentID, "limit": topN, "found": len(records)},
	}
	for _, r := range records {
		result.Rows = append(result.Rows, []any{r.CreatedTs, r.Topic, r.StrongPoints, r.WeakPoints, r.GeneralComments})
	}
	return result, nil
}

func (w *AnalyticsWorkflow) myPoints(ctx context.Context, reqContext map[string]any, topN int) (*AnalyticsResult, error) {
	studentID, err := studentIDFromContext(reqContext)
	if err != nil {
		return nil, err
	}
	records, err := w.lastRecords(ctx, studentID, topN)
	if err != nil {
		return nil, err
	}

	strong := uniqueJoin(records, func(r *store.SessionRecord) string { return r.StrongPoints }, " • ")
	weak := uniqueJoin(records, func(r *store.SessionRecord) string { return r.WeakPoints }, " • ")
	comments := uniqueJoin(records, func(r *store.SessionRecord) string { return r.GeneralComments }, " | ")
	topics := uniqueJoin(records, func(r *store.SessionRecord) string { return r.Topic }, " • ")

	return &AnalyticsResult{
		Kind:    "my_points",
		Columns: []string{"strong_points", "weak_points", "general_comments", "topics"},
		Rows:    [][]any{{strong, weak, comments, topics}},
		Meta:    map[string]any{"student_id": studentID, "limit": topN, "found": len(records)},
	}, nil
}

func (w *AnalyticsWorkflow) topThemes(ctx context.Context, reqContext map[string]any, topN int) (*AnalyticsResult, error) {
	studentID, err := studentIDFromContext(reqContext)
	if err != nil {
		return nil, err
	}
	// Generous window for frequency counting.
	records, err := w.lastRecords(ctx, studentID, 50)
	if err != nil {
		return nil, err
	}

	freq := make(map[string]int)
	for _, r := range records {
		if topic := strings.TrimSpace(r.Topic); topic != "" {
			freq[topic]++
		}
	}
	topics := make([]string, 0, len(freq))
	for topic := range freq {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool {
		if freq[topics[i]] != freq[topics[j]] {
			return freq[topics[i]] > freq[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > topN {
		topics = topics[:topN]
	}

	result := &AnalyticsResult{
		Kind:    "top_themes",
		Columns: []string{"topic", "occurrences"},
		Meta:    map[string]any{"student_id": studentID, "top_n": topN},
	}
	for _, topic := range topics {
		result.Rows = append(result.Rows, []any{topic, freq[topic]})
	}
	return result, nil
}

func (w *AnalyticsWorkflow) lastRecords(ctx context.Context, studentID string, limit int) ([]*store.SessionRecord, error) {
	return w.store.ListSessionRecords(ctx, &store.FindSessionRecord{
		StudentID: &studentID,
		Limit:     &limit,
	})
}

// studentIDFromContext extracts the student identifier, accepting the
// key variants used across clients.
func studentIDFromContext(reqContext map[string]any) (string, error) {
	for _, key := range []string{"student_id", "user_uuid", "user_id"} {
		if id, ok := reqContext[key].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", ErrMissingStudentID
}

// parseTopN extracts an integer N from free text, clamped to [1, 50].
func parseTopN(text string, defaultN int) int {
	m := topNRegex.FindString(text)
	if m == "" {
		return defaultN
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return defaultN
	}
	if n < 1 {
		return 1
	}
	if n > 50 {
		return 50
	}
	return n
}

func uniqueJoin(records []*store.SessionRecord, field func(*store.SessionRecord) string, sep string) string {
	seen := make(map[string]bool, len(records))
	var out []string
	for _, r := range records {
		v := strings.TrimSpace(field(r))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, sep)
}
