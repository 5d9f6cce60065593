package v1

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/gate"
	"github.com/mirai-edu/tutorflow/plugin/sessionlog"
	"github.com/mirai-edu/tutorflow/plugin/workflow"
	"github.com/mirai-edu/tutorflow/store"
)

type stubCaller struct {
	mu       sync.Mutex
	handlers map[string]func(payload map[string]any) (map[string]any, error)
}

func (c *stubCaller) on(service string, handler func(map[string]any) (map[string]any, error)) {
	if c.handlers == nil {
		c.handlers = make(map[string]func(map[string]any) (map[string]any, error))
	}
	c.handlers[service] = handler
}

func (c *stubCaller) respond(service string, resp map[string]any) {
	c.on(service, func(map[string]any) (map[string]any, error) { return resp, nil })
}

func (c *stubCaller) Call(_ context.Context, service string, _ map[string]any) (map[string]any, error) {
	c.mu.Lock()
	handler, ok := c.handlers[service]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unscripted service %q", service)
	}
	return handler(nil)
}

type stubDriver struct {
	mu      sync.Mutex
	records []*store.SessionRecord
	nextID  int32
}

func (d *stubDriver) GetDB() *sql.DB                { return nil }
func (d *stubDriver) Close() error                  { return nil }
func (d *stubDriver) Migrate(context.Context) error { return nil }

func (d *stubDriver) CreateSessionRecord(_ context.Context, create *store.SessionRecord) (*store.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	create.ID = d.nextID
	d.records = append(d.records, create)
	return create, nil
}

func (d *stubDriver) ListSessionRecords(_ context.Context, find *store.FindSessionRecord) ([]*store.SessionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*store.SessionRecord
	for i := len(d.records) - 1; i >= 0; i-- {
		r := d.records[i]
		if find.StudentID != nil && r.StudentID != *find.StudentID {
			continue
		}
		out = append(out, r)
		if find.Limit != nil && len(out) >= *find.Limit {
			break
		}
	}
	return out, nil
}

func newTestAPI(caller *stubCaller) (*echo.Echo, *store.Store) {
	st := store.New(&stubDriver{})
	log := sessionlog.NewMemoryLog(sessionlog.DefaultWindow, sessionlog.DefaultTTL)
	sessions := workflow.NewSessionWorkflow(caller, log, st)
	natural := workflow.NewNaturalWorkflow(caller, log, nil)
	analytics := workflow.NewAnalyticsWorkflow(st)
	dispatcher := workflow.NewDispatcher(caller, sessions, natural, analytics)
	pipeline := workflow.NewPipeline(gate.New(caller), dispatcher)

	e := echo.New()
	NewAPIV1Service(&profile.Profile{Mode: "dev"}, st, pipeline, sessions, analytics).Register(e)
	return e, st
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandleMessageAllowed(t *testing.T) {
	caller := &stubCaller{}
	caller.respond(gate.ServiceName, map[string]any{
		"pergunta_nociva":        false,
		"classificacao_pergunta": "conversa_sem_query",
	})
	caller.respond(profile.AgentNatural, map[string]any{"answer": "hi!"})

	e, _ := newTestAPI(caller)
	rec := doJSON(e, http.MethodPost, "/api/v1/pipeline/message",
		`{"message": "hello", "user_id": "user-1", "session_id": "sess-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflow.MessageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "ok", res.Final.Status)
	require.True(t, res.Gate.Allowed)
}

func TestHandleMessageBlocked(t *testing.T) {
	caller := &stubCaller{}
	caller.respond(gate.ServiceName, map[string]any{
		"pergunta_nociva":        true,
		"classificacao_pergunta": "conversa_sem_query",
	})

	e, _ := newTestAPI(caller)
	rec := doJSON(e, http.MethodPost, "/api/v1/pipeline/message", `{"message": "bad stuff"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflow.MessageResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "blocked", res.Final.Status)
	require.Nil(t, res.Dispatch)
}

func TestHandleMessageGateFailureIsBadGateway(t *testing.T) {
	caller := &stubCaller{}
	caller.on(gate.ServiceName, func(map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("guardrails unreachable")
	})

	e, _ := newTestAPI(caller)
	rec := doJSON(e, http.MethodPost, "/api/v1/pipeline/message", `{"message": "hello"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleMessageRequiresMessage(t *testing.T) {
	e, _ := newTestAPI(&stubCaller{})
	rec := doJSON(e, http.MethodPost, "/api/v1/pipeline/message", `{"user_id": "u"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunSessionTurn(t *testing.T) {
	caller := &stubCaller{}
	caller.respond(profile.AgentPlanner, map[string]any{"plan": "1) basics"})
	caller.respond(profile.AgentProfessor, map[string]any{"lesson": "let's begin"})

	e, _ := newTestAPI(caller)
	rec := doJSON(e, http.MethodPost, "/api/v1/sessions/turn",
		`{"student_id": "s1", "question": "teach me", "session_id": "sess-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflow.TurnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "1) basics", res.Plan)
	require.Equal(t, "let's begin", res.Lesson)
}

func TestFinalizeEmptySessionIsNotFound(t *testing.T) {
	e, _ := newTestAPI(&stubCaller{})
	rec := doJSON(e, http.MethodPost, "/api/v1/sessions/finalize",
		`{"student_id": "s1", "session_id": "nope"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFinalizeAfterTurnPersistsRecord(t *testing.T) {
	caller := &stubCaller{}
	caller.respond(profile.AgentPlanner, map[string]any{"plan": "plan text"})
	caller.respond(profile.AgentProfessor, map[string]any{"lesson": "lesson text"})
	caller.respond(profile.AgentEvaluator, map[string]any{
		"strong_points":    "curiosity",
		"weak_points":      "notation",
		"general_comments": "keep going",
	})

	e, st := newTestAPI(caller)
	rec := doJSON(e, http.MethodPost, "/api/v1/sessions/turn",
		`{"student_id": "s1", "question": "what is calculus?", "session_id": "sess-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/sessions/finalize",
		`{"student_id": "s1", "session_id": "sess-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflow.FinalizeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "finalized", res.Status)
	require.NotEmpty(t, res.RecordUID)

	stored, err := st.GetSessionRecord(context.Background(), &store.FindSessionRecord{UID: &res.RecordUID})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "curiosity", stored.StrongPoints)
}

func TestRunAnalyticsQuery(t *testing.T) {
	caller := &stubCaller{}
	e, st := newTestAPI(caller)

	_, err := st.CreateSessionRecord(context.Background(), &store.SessionRecord{
		StudentID: "s1",
		Topic:     "algebra",
	})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/api/v1/analytics/query",
		`{"question": "my last session", "context": {"student_id": "s1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res workflow.AnalyticsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "last_session", res.Kind)
	require.Len(t, res.Rows, 1)
}

func TestRunAnalyticsQueryMissingStudent(t *testing.T) {
	e, _ := newTestAPI(&stubCaller{})
	rec := doJSON(e, http.MethodPost, "/api/v1/analytics/query", `{"question": "my last session"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionRecords(t *testing.T) {
	e, st := newTestAPI(&stubCaller{})
	for i := 0; i < 3; i++ {
		_, err := st.CreateSessionRecord(context.Background(), &store.SessionRecord{
			StudentID: "s1",
			Topic:     fmt.Sprintf("topic-%d", i),
		})
		require.NoError(t, err)
	}

	rec := doJSON(e, http.MethodGet, "/api/v1/records?student_id=s1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Records []*store.SessionRecord `json:"records"`
		Count   int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 2, res.Count)
	require.Equal(t, "topic-2", res.Records[0].Topic)
}

func TestListSessionRecordsRequiresStudentID(t *testing.T) {
	e, _ := newTestAPI(&stubCaller{})
	rec := doJSON(e, http.MethodGet, "/api/v1/records", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPipelineRateLimit(t *testing.T) {
	caller := &stubCaller{}
	caller.respond(gate.ServiceName, map[string]any{
		"pergunta_nociva":        false,
		"classificacao_pergunta": "conversa_sem_query",
	})
	caller.respond(profile.AgentNatural, map[string]any{"answer": "hi"})

	e, _ := newTestAPI(caller)

	var saw429 bool
	for i := 0; i < 30; i++ {
		rec := doJSON(e, http.MethodPost, "/api/v1/pipeline/message",
			`{"message": "hello", "user_id": "burst-user"}`)
		if rec.Code == http.StatusTooManyRequests {
			saw429 = true
			break
		}
	}
	require.True(t, saw429)
}
