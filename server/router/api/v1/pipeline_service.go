package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// MessageRequest is the body of the gated pipeline entrypoint.
type MessageRequest struct {
	Message   string         `json:"message"`
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

// HandleMessage runs a message through the full gate → dispatch flow.
// POST /api/v1/pipeline/message
func (s *APIV1Service) HandleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "message is required"})
	}

	if key := rateLimitKey(req.UserID, c.RealIP()); !s.limiter.Allow(key) {
		return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	}

	result, err := s.Pipeline.HandleMessage(c.Request().Context(), req.Message, req.UserID, req.SessionID, req.Context)
	if err != nil {
		// The gate could not produce a decision; the message must not
		// pass through on a classifier failure.
		slog.Error("gate evaluation failed", "user", req.UserID, "error", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "safety gate unavailable"})
	}

	return c.JSON(http.StatusOK, result)
}

func rateLimitKey(userID, ip string) string {
	if userID != "" {
		return userID
	}
	return ip
}
