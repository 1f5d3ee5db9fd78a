// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package docview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jeranaias/bridgechat/internal/logging"
	"github.com/jeranaias/bridgechat/internal/metrics"
	"go.uber.org/zap"
)

// DefaultRateLimit is requests per minute per client IP.
const DefaultRateLimit = 120

// Options configures a Server.
type Options struct {
	// RateLimit is requests per minute per client IP. Zero uses
	// DefaultRateLimit, negative disables limiting.
	RateLimit int
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string
}

// Server renders documents over HTTP.
type Server struct {
	finder Finder
	opts   Options
	logger *zap.Logger
	router chi.Router
	server *http.Server
}

// NewServer builds the router.
func NewServer(finder Finder, opts Options, logger *zap.Logger) *Server {
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}
	s := &Server{
		finder: finder,
		opts:   opts,
		logger: logging.OrNop(logger).Named("docview"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(securityHeaders)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	if s.opts.RateLimit > 0 {
		r.Use(httprate.Limit(
			s.opts.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			}),
		))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/{table}/{id}", s.handleDocument)
	return r
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")
	printable := r.URL.Query().Get("export") == "pdf"

	doc, err := s.finder.Find(r.Context(), table, id)
	if err != nil {
		status, msg := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("document lookup failed",
				zap.String("table", table), zap.String("id", id), zap.Error(err))
		}
		s.observe(table, status)
		writeError(w, status, msg)
		return
	}

	body, err := renderDocument(doc, printable)
	if err != nil {
		s.logger.Error("render failed", zap.String("table", table), zap.String("id", id), zap.Error(err))
		s.observe(table, http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "failed to render document")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if printable {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.Table+"-"+doc.ID+".pdf"))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	s.observe(table, http.StatusOK)
}

// observe records a response, folding unknown tables into one label.
func (s *Server) observe(table string, status int) {
	if validate(table, "x") != nil {
		table = "unknown"
	}
	metrics.DocRequests.WithLabelValues(table, strconv.Itoa(status)).Inc()
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnknownTable):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "database error"
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("document server listening", zap.String("addr", ln.Addr().String()))
		errc <- s.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("document server shutting down")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
