package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirai-edu/tutorflow/store"
)

func seedAnalyticsStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	st := store.New(&memDriver{})

	seeds := []*store.SessionRecord{
		{StudentID: "student-1", Topic: "fractions", StrongPoints: "mental math", WeakPoints: "mixed numbers", GeneralComments: "steady"},
		{StudentID: "student-1", Topic: "equations", StrongPoints: "isolating variables", WeakPoints: "sign errors", GeneralComments: "improving"},
		{StudentID: "student-1", Topic: "equations", StrongPoints: "isolating variables", WeakPoints: "sign errors", GeneralComments: "improving"},
		{StudentID: "student-2", Topic: "geometry", StrongPoints: "angles", WeakPoints: "proofs", GeneralComments: "new"},
	}
	for _, s := range seeds {
		_, err := st.CreateSessionRecord(ctx, s)
		require.NoError(t, err)
	}
	return st
}

func TestAnalyticsLastSession(t *testing.T) {
	w := NewAnalyticsWorkflow(seedAnalyticsStore(t))

	res, err := w.Run(context.Background(), "show my last session", map[string]any{"student_id": "student-1"})
	require.NoError(t, err)
	require.Equal(t, "last_session", res.Kind)
	require.Len(t, res.Rows, 1)
	// Most recent record for student-1 is the second equations session.
	require.Equal(t, "equations", res.Rows[0][1])
}

func TestAnalyticsSessionsSummaryHonorsLimit(t *testing.T) {
	w := NewAnalyticsWorkflow(seedAnalyticsStore(t))

	res, err := w.Run(context.Background(), "summary of my sessions (2)", map[string]any{"user_id": "student-1"})
	require.NoError(t, err)
	require.Equal(t, "sessions_summary", res.Kind)
	require.Len(t, res.Rows, 2)
	require.Equal(t, 2, res.Meta["limit"])
}

func TestAnalyticsMyPointsDeduplicates(t *testing.T) {
	w := NewAnalyticsWorkflow(seedAnalyticsStore(t))

	res, err := w.Run(context.Background(), "what are my strengths?", map[string]any{"student_id": "student-1"})
	require.NoError(t, err)
	require.Equal(t, "my_points", res.Kind)
	require.Len(t, res.Rows, 1)

	strong, ok := res.Rows[0][0].(string)
	require.True(t, ok)
	// The duplicated equations session must not repeat its points.
	require.Equal(t, "isolating variables • mental math", strong)
}

func TestAnalyticsTopThemesOrdersByFrequency(t *testing.T) {
	w := NewAnalyticsWorkflow(seedAnalyticsStore(t))

	res, err := w.Run(context.Background(), "which topics are most frequent?", map[string]any{"student_id": "student-1"})
	require.NoError(t, err)
	require.Equal(t, "top_themes", res.Kind)
	require.Len(t, res.Rows, 2)
	require.Equal(t, []any{"equations", 2}, res.Rows[0])
	require.Equal(t, []any{"fractions", 1}, res.Rows[1])
}

func TestAnalyticsMissingStudentID(t *testing.T) {
	w := NewAnalyticsWorkflow(seedAnalyticsStore(t))

	_, err := w.Run(context.Background(), "my last session", map[string]any{})
	require.ErrorIs(t, err, ErrMissingStudentID)
}

func TestAnalyticsUnsupportedQuery(t *testing.T) {
	w := NewAnalyticsWorkflow(seedAnalyticsStore(t))

	_, err := w.Run(context.Background(), "delete everything", map[string]any{"student_id": "student-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported analytics query")
}

func TestParseTopNClamps(t *testing.T) {
	require.Equal(t, 5, parseTopN("no number here", 5))
	require.Equal(t, 3, parseTopN("summary of my sessions (3)", 5))
	require.Equal(t, 50, parseTopN("themes 999", 5))
	require.Equal(t, 1, parseTopN("themes 0", 5))
}
