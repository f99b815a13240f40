// Package server provides the HTTP API for the Shirabe broker.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/history"
	"github.com/hyperjump/shirabe/internal/metrics"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/watcher"
	"go.uber.org/zap"
)

// QueryService answers queries.
type QueryService interface {
	Submit(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error)
	Sources() []models.SourceDescriptor
}

// HistorySearcher searches and maintains the history index.
type HistorySearcher interface {
	Search(ctx context.Context, q string, limit int, opts *history.SearchOptions) ([]*history.Hit, error)
	Correct(q string) (string, bool, error)
	Delete(key string) error
	DocCount() (uint64, error)
}

// KnowledgeImporter imports knowledge-base files on request.
type KnowledgeImporter interface {
	ImportFile(ctx context.Context, path string) (*watcher.ImportResult, error)
}

// WatchService lists the watched knowledge directories.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the Shirabe API.
type Server struct {
	broker    QueryService
	cache     storage.CacheStore
	history   HistorySearcher
	importer  KnowledgeImporter
	watch     WatchService
	metrics   *metrics.Metrics
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
	startedAt time.Time
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithHistory enables the history search endpoints.
func WithHistory(h HistorySearcher) Option {
	return func(s *Server) { s.history = h }
}

// WithImporter enables the knowledge import endpoint.
func WithImporter(im KnowledgeImporter) Option {
	return func(s *Server) { s.importer = im }
}

// WithWatch reports watched knowledge directories in status.
func WithWatch(w WatchService) Option {
	return func(s *Server) { s.watch = w }
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server with the given dependencies. cache may be nil.
func NewServer(broker QueryService, cache storage.CacheStore, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		broker:    broker,
		cache:     cache,
		config:    cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/sources", s.handleSources)
		r.Get("/status", s.handleStatus)

		r.Get("/history", s.handleHistoryList)
		r.Get("/history/search", s.handleHistorySearch)
		r.Delete("/history/{key}", s.handleHistoryDelete)

		r.Post("/knowledge/import", s.handleKnowledgeImport)
		r.Get("/knowledge/export", s.handleKnowledgeExport)
	})
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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
