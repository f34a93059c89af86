// Package server provides the HTTP API for Rehydra.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rehydra/rehydra/internal/config"
	"github.com/rehydra/rehydra/internal/session"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Rehydra API.
type Server struct {
	sessions *session.Manager
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(sessions *session.Manager, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/sessions", s.handleCreateSession)
	r.Post("/api/v1/sessions/{id}/anonymize", s.handleAnonymize)
	r.Post("/api/v1/sessions/{id}/rehydrate", s.handleRehydrate)
	r.Get("/api/v1/sessions/{id}", s.handleGetSession)
	r.Delete("/api/v1/sessions/{id}", s.handleDeleteSession)
	r.Post("/api/v1/cleanup", s.handleCleanup)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
