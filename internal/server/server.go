// Package server exposes the documents folder, the sync engine and the
// question answering assistant over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/metrics"
	"github.com/ziadkadry99/docqa/internal/rag"
	"github.com/ziadkadry99/docqa/internal/session"
	"github.com/ziadkadry99/docqa/internal/syncer"
	"github.com/ziadkadry99/docqa/internal/walker"
)

// Config holds server configuration.
type Config struct {
	Port        int
	AllowAll    bool  // allow all CORS origins (dev mode)
	MaxUpload   int64 // upload size limit in bytes, 0 for the walker default
	DefaultTopK int   // search results when k is not given
}

// Server is the docqa HTTP server.
type Server struct {
	cfg        Config
	engine     *syncer.Engine
	assistant  *rag.Assistant
	sessions   *session.Store
	loader     loader.Loader
	markdown   goldmark.Markdown
	logger     *zap.Logger
	metrics    *metrics.Collector
	router     chi.Router
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// New creates a server with all dependencies.
func New(cfg Config, engine *syncer.Engine, assistant *rag.Assistant, sessions *session.Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		assistant: assistant,
		sessions:  sessions,
		loader:    loader.New(),
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MaxUpload <= 0 {
		s.cfg.MaxUpload = walker.DefaultMaxFileSize
	}
	if s.cfg.DefaultTopK <= 0 {
		s.cfg.DefaultTopK = assistant.TopK()
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))

		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleUpload)
		r.Get("/documents/{name}/preview", s.handlePreview)
		r.Delete("/documents/{name}", s.handleDeleteDocument)

		r.Post("/sync", s.handleSync)
		r.Get("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)

		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/reset", s.handleResetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
	})

	r.Get("/ws/chat", s.handleWebSocket)

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("docqa server listening", zap.String("addr", s.httpServer.Addr), zap.String("documents", s.engine.Root()))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server. A server shut down before
// Start returns http.ErrServerClosed from Start immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
