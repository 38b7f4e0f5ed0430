package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/linkfabric/swagent/pkg/orch"
)

// Server is the diagnostics HTTP server: health, metrics, pending
// tasks and reference-graph dumps.
type Server struct {
	router *gin.Engine
	server *http.Server
	orchs  []*orch.Orch
	refs   *orch.RefMap
	logger *zap.Logger
}

// Config holds diagnostics server configuration.
type Config struct {
	Port   int
	Orchs  []*orch.Orch
	Refs   *orch.RefMap
	Logger *zap.Logger
}

// NewServer creates the diagnostics server.
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))

	s := &Server{
		router: router,
		orchs:  cfg.Orchs,
		refs:   cfg.Refs,
		logger: cfg.Logger,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	return s
}

// setupRoutes configures diagnostics routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/pending", s.handlePendingTasks)
		v1.GET("/refs/:table/:name", s.handleReferenceInfo)
	}
}

// Start starts the diagnostics server.
func (s *Server) Start() error {
	s.logger.Info("starting diagnostics server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start diagnostics server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down diagnostics server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown diagnostics server: %w", err)
	}

	return nil
}
