// Package server exposes exports and imports over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/robertmeta/tpxa/importer"
	"github.com/robertmeta/tpxa/jobs"
	"github.com/robertmeta/tpxa/tpxa"
)

// Options configures a Server.
type Options struct {
	// Export holds the defaults that query parameters are applied on top of.
	Export tpxa.ExportOptions
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	source   tpxa.Source
	importer *importer.Importer
	queue    *jobs.Queue
	opts     Options
	router   *chi.Mux
	logger   *slog.Logger
}

// New creates a server with all routes configured.
func New(source tpxa.Source, imp *importer.Importer, queue *jobs.Queue, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = importer.DefaultMaxSize
	}
	s := &Server{
		source:   source,
		importer: imp,
		queue:    queue,
		opts:     opts,
		router:   chi.NewRouter(),
		logger:   opts.Logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Exports are streamed, so no compression middleware: it would buffer.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/export.tpxa", s.handleExport)

	s.router.Route("/import", func(r chi.Router) {
		r.Post("/", s.handleImport)
		r.Get("/{id}", s.handleGetImport)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
