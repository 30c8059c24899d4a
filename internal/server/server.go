package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/pdfdrop/internal/config"
	"github.com/sanonone/pdfdrop/internal/server/ui"
	"github.com/sanonone/pdfdrop/pkg/extract"
)

// Server serves the drop page, the extraction API and the export downloads.
type Server struct {
	extractor   *extract.Extractor
	taskManager *TaskManager
	httpServer  *http.Server

	authToken  string
	corsOrigin string
	timeout    time.Duration

	// tasks run under baseCtx so Shutdown can cancel them
	baseCtx   context.Context
	stopTasks context.CancelFunc
	maxUpload int64
}

// NewServer builds the HTTP server for cfg around an extractor.
func NewServer(cfg config.Config, extractor *extract.Extractor) *Server {
	baseCtx, stop := context.WithCancel(context.Background())

	s := &Server{
		extractor:   extractor,
		taskManager: NewTaskManager(cfg.Tasks.MaxRetained),
		authToken:   cfg.AuthToken,
		corsOrigin:  cfg.CORSOrigin,
		timeout:     cfg.Extraction.Timeout,
		baseCtx:     baseCtx,
		stopTasks:   stop,
	}
	if cfg.Extraction.MaxFiles > 0 && cfg.Extraction.MaxFileBytes > 0 {
		// room for every file plus multipart framing
		s.maxUpload = int64(cfg.Extraction.MaxFiles)*cfg.Extraction.MaxFileBytes + 1<<20
	}

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full handler tree.
//
// Chain for the API: Recovery -> Logging -> CORS -> Auth -> api mux.
// Recovery must be outer-most to catch everything.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	s.registerHTTPHandlers(api)

	var apiHandler http.Handler = api
	apiHandler = s.authMiddleware(apiHandler)
	apiHandler = s.CORSMiddleware(apiHandler)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealthz)
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/api/", apiHandler)
	root.Handle("/", ui.GetHandler())

	var handler http.Handler = root
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)
	return handler
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits up to 5s for in-flight ones and cancels
// every running task.
func (s *Server) Shutdown() {
	slog.Info("Starting graceful shutdown of HTTP Server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	s.stopTasks()
}

// extractContext applies the configured extraction timeout to parent.
func (s *Server) extractContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return context.WithCancel(parent)
}
