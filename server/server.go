// Package server assembles the HTTP surface of the tutoring pipeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/mirai-edu/tutorflow/internal/profile"
	"github.com/mirai-edu/tutorflow/plugin/workflow"
	"github.com/mirai-edu/tutorflow/server/internal/observability"
	apiv1 "github.com/mirai-edu/tutorflow/server/router/api/v1"
	"github.com/mirai-edu/tutorflow/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	metrics    *observability.Metrics
}

// NewServer wires the API surface over the assembled workflows.
func NewServer(p *profile.Profile, st *store.Store, pipeline *workflow.Pipeline, sessions *workflow.SessionWorkflow, analytics *workflow.AnalyticsWorkflow) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := observability.NewMetrics(1000)

	e.Use(echomw.Recover())
	e.Use(requestLogger(metrics))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": p.Version,
			"mode":    p.Mode,
		})
	})

	e.GET("/api/v1/metrics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, metrics.Snapshot())
	})

	apiv1.NewAPIV1Service(p, st, pipeline, sessions, analytics).Register(e)

	return &Server{
		Profile:    p,
		Store:      st,
		echoServer: e,
		metrics:    metrics,
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server listening", "address", addr, "mode", s.Profile.Mode)

	if err := s.echoServer.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down http server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}

// requestLogger logs one line per request through slog and feeds the
// metrics collector.
func requestLogger(metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			latency := time.Since(start)
			metrics.Record(c.Path(), c.Response().Status, latency)
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"latency", latency,
				"remote", c.RealIP())
			return err
		}
	}
}
