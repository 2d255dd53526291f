// Package server is the HTTP adapter in front of the orchestrator: request
// validation, id assignment, and signal-with-start into Temporal.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/vidscribe-backend/internal/combine"
	"github.com/yungbote/vidscribe-backend/internal/manifest"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/temporalx"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

type Server struct {
	log    *logger.Logger
	engine *gin.Engine
}

// New wires the router. The builder and manifest store back the admin
// endpoints; batch dispatch only needs the Temporal client.
func New(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	cfg temporalx.Config,
	b bucket.Service,
	m *manifest.Store,
	builder *combine.Builder,
) *Server {
	if envutil.String("APP_ENV", "development") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	h := newBatchHandler(log, tc, cfg, b)
	admin := newAdminHandler(log, b, m, builder)

	r := gin.Default()
	r.Use(corsMiddleware())
	r.GET("/health", h.Health)
	r.POST("/batch", h.SubmitBatch)
	r.POST("/process", h.ProcessDirect)
	r.POST("/admin/reindex", admin.Reindex)

	return &Server{log: log.With("service", "HTTPServer"), engine: r}
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run() error {
	addr := envutil.String("API_ADDR", ":8000")
	s.log.Info("HTTP server listening", "addr", addr)
	return s.engine.Run(addr)
}

// Engine exposes the router for tests.
func (s *Server) Engine() http.Handler { return s.engine }
