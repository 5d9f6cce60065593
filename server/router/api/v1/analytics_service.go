package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mirai-edu/tutorflow/plugin/workflow"
	"github.com/mirai-edu/tutorflow/store"
)

// AnalyticsRequest is the body of a local analytics question.
type AnalyticsRequest struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
}

// RunAnalyticsQuery answers an analytics question from stored records.
// POST /api/v1/analytics/query
func (s *APIV1Service) RunAnalyticsQuery(c echo.Context) error {
	var req AnalyticsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Question == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "question is required"})
	}

	result, err := s.Analytics.Run(c.Request().Context(), req.Question, req.Context)
	if err != nil {
		if errors.Is(err, workflow.ErrMissingStudentID) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// ListSessionRecords returns the durable records of a student, newest
// first.
// GET /api/v1/records?student_id=...&limit=N
func (s *APIV1Service) ListSessionRecords(c echo.Context) error {
	studentID := c.QueryParam("student_id")
	if studentID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "student_id is required"})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	records, err := s.Store.ListSessionRecords(c.Request().Context(), &store.FindSessionRecord{
		StudentID: &studentID,
		Limit:     &limit,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to list records"})
	}
	return c.JSON(http.StatusOK, map[string]any{"records": records, "count": len(records)})
}
