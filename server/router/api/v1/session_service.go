package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mirai-edu/tutorflow/plugin/workflow"
)

// TurnRequest is the body of a direct tutoring turn, bypassing the gate.
type TurnRequest struct {
	StudentID string `json:"student_id"`
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// FinalizeRequest closes an ongoing tutoring session.
type FinalizeRequest struct {
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
}

// RunSessionTurn executes one tutoring turn for an ongoing session.
// POST /api/v1/sessions/turn
func (s *APIV1Service) RunSessionTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Question == "" || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "question and session_id are required"})
	}

	result, err := s.Sessions.RunTurn(c.Request().Context(), req.StudentID, req.Question, req.SessionID)
	if err != nil {
		slog.Error("session turn failed", "session", req.SessionID, "error", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// FinalizeSession evaluates and persists an ongoing session, then clears
// its log.
// POST /api/v1/sessions/finalize
func (s *APIV1Service) FinalizeSession(c echo.Context) error {
	var req FinalizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "session_id is required"})
	}

	result, err := s.Sessions.Finalize(c.Request().Context(), req.StudentID, req.SessionID)
	if err != nil {
		if errors.Is(err, workflow.ErrEmptyHistory) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		}
		slog.Error("session finalize failed", "session", req.SessionID, "error", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}
