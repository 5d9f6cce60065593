// Package v1 exposes the tutoring pipeline over HTTP: the gated message
// entrypoint, explicit session turn/finalize endpoints, local analytics
// queries and read access to durable session records.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/workflow"
	"github.com/mirai-edu/tutorflow/server/middleware"
	"github.com/mirai-edu/tutorflow/store"
)

type APIV1Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Pipeline  *workflow.Pipeline
	Sessions  *workflow.SessionWorkflow
	Analytics *workflow.AnalyticsWorkflow

	limiter *middleware.RateLimiter
}

func NewAPIV1Service(p *profile.Profile, st *store.Store, pipeline *workflow.Pipeline, sessions *workflow.SessionWorkflow, analytics *workflow.AnalyticsWorkflow) *APIV1Service {
	return &APIV1Service{
		Profile:   p,
		Store:     st,
		Pipeline:  pipeline,
		Sessions:  sessions,
		Analytics: analytics,
		limiter:   middleware.NewRateLimiter(middleware.DefaultRequestsPerSecond, middleware.DefaultBurst),
	}
}

// Register attaches all v1 routes to the given Echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/pipeline/message", s.HandleMessage)
	g.POST("/sessions/turn", s.RunSessionTurn)
	g.POST("/sessions/finalize", s.FinalizeSession)
	g.POST("/analytics/query", s.RunAnalyticsQuery)
	g.GET("/records", s.ListSessionRecords)
}

type errorResponse struct {
	Error string `json:"error"`
}
