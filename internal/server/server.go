// Package server provides the HTTP API for the content database.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/contentdb"
	"github.com/hyperjump/contentdb/pkg/utils"
)

// WatchService reports the directories kept in sync with the database.
type WatchService interface {
	Roots() []string
}

// Server is the HTTP server for the content database API.
type Server struct {
	db     *contentdb.DB
	watch  WatchService
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server over db. watch may be nil when no directories are watched.
func NewServer(db *contentdb.DB, cfg *config.ServerConfig, logger *zap.Logger, watch WatchService) *Server {
	return &Server{
		db:     db,
		watch:  watch,
		config: cfg,
		logger: utils.OrNop(logger),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/matrix", s.handleMatrix)
		r.Get("/rows/{id}", s.handleRow)
		r.Get("/cells/{row}/{col}", s.handleCell)
		r.Get("/columns/{col}", s.handleColumn)
		r.Post("/entities", s.handleSetContent)
		r.Get("/entities/{id}", s.handleGetEntity)
		r.Delete("/entities/{id}", s.handleDeleteEntity)
		r.Post("/candidates", s.handleCandidates)
		r.Get("/similar/{id}", s.handleSimilar)
		r.Get("/recommend/{id}", s.handleRecommend)
		r.Post("/rebuild", s.handleRebuild)
		r.Get("/watch/directories", s.handleWatchDirectories)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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
