// Package server provides the HTTP API for clipsearch.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/clipsearch/internal/config"
	"github.com/hyperjump/clipsearch/internal/semantic"
	"github.com/hyperjump/clipsearch/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the clipsearch API.
type Server struct {
	semantic *semantic.Service
	storage  storage.Storage
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	// configPath and settings are used to persist runtime changes such as the
	// enabled flag. When configPath is empty nothing is written.
	configPath string
	settings   *config.Config
	settingsMu sync.Mutex
}

// NewServer creates a server with the given dependencies. settings may be nil.
func NewServer(
	svc *semantic.Service,
	storage storage.Storage,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	configPath string,
	settings *config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		semantic:   svc,
		storage:    storage,
		config:     cfg,
		logger:     logger,
		configPath: configPath,
		settings:   settings,
	}
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/semantic", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Post("/search", s.handleSearch)
			r.Put("/enabled", s.handleSetEnabled)
			r.Post("/download", s.handleDownloadStart)
			r.Delete("/download", s.handleDownloadCancel)
			r.Get("/download/manual", s.handleDownloadManual)
			r.Post("/rebuild", s.handleRebuild)
			r.Post("/rebuild/full", s.handleFullRebuild)
			r.Post("/backfill", s.handleBackfill)
		})
		r.Post("/items", s.handleAddItem)
		r.Get("/items/{id}", s.handleGetItem)
		r.Delete("/items/{id}", s.handleDeleteItem)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
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
