// Package httpapi serves the enrichment pipeline over HTTP: one-shot HTML
// enrichment, embed list interception, link classification and channel
// status lookups.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/twitchpreview/enrich"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithResolver replaces the status resolver shared by all requests.
func WithResolver(r enrich.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// Server is the HTTP front of the pipeline.
type Server struct {
	cfg      *enrich.Config
	resolver enrich.Resolver
	logger   *slog.Logger
	router   chi.Router
}

// New builds the router.
func New(cfg *enrich.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = enrich.DefaultConfig()
	}
	s := &Server{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.resolver == nil {
		s.resolver = enrich.NewResolver(cfg.Status, s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(requestLogger(s.logger))
	r.Use(maxBody(cfg.Server.MaxBody))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/enrich", s.handleEnrich)
		r.Post("/embeds", s.handleEmbeds)
		r.Get("/match", s.handleMatch)
		r.Get("/status/{channel}", s.handleStatus)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on cfg.Server.Addr until ctx is done, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("httpapi: listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("httpapi: stopped")
	return nil
}

// settleTimeout bounds how long a request waits for status lookups.
func (s *Server) settleTimeout() time.Duration {
	return s.cfg.Enrich.MaxSettle + s.cfg.Status.Timeout + time.Second
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// bodyStatus maps a body read error to a status code.
func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
