// Package server provides the HTTP API for Tansa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/okibi/tansa/internal/config"
	"github.com/okibi/tansa/internal/engine"
)

// Server is the HTTP server for the Tansa API.
type Server struct {
	engine *engine.Engine
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server around an open engine.
func NewServer(eng *engine.Engine, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		engine: eng,
		config: cfg,
		logger: logger,
	}
}

// Handler returns the routed API handler, usable standalone in tests or
// behind another mux.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ingest", s.handleIngest)
	r.Post("/api/v1/query", s.handleQuery)
	r.Post("/api/v1/delete", s.handleDelete)
	r.Post("/api/v1/reset", s.handleReset)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
