// Package api exposes the EvorBrain command surface over HTTP.
//
// Every service operation has a REST route under /api/v1. Change events are
// streamed as server-sent events from /api/v1/events, and /healthz and
// /metrics serve health checks and Prometheus scrapes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/evorbrain/evorbrain/pkg/backup"
	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/scheduler"
	"github.com/evorbrain/evorbrain/pkg/service"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// Options configures a Server. Only Service is required.
type Options struct {
	Service   *service.Service
	Backups   *backup.Manager
	Scheduler *scheduler.Scheduler
	Logger    zerolog.Logger
	Version   string

	// RequestTimeout bounds every route except the event stream.
	RequestTimeout time.Duration

	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
}

// Server serves the HTTP API.
type Server struct {
	svc       *service.Service
	backups   *backup.Manager
	scheduler *scheduler.Scheduler
	tel       *telemetry.Telemetry
	logger    zerolog.Logger
	version   string
	timeout   time.Duration
	heartbeat time.Duration
	router    chi.Router
}

// NewServer builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("service is required")
	}

	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}

	s := &Server{
		svc:       opts.Service,
		backups:   opts.Backups,
		scheduler: opts.Scheduler,
		tel:       opts.Service.Telemetry(),
		logger:    opts.Logger.With().Str("component", "api").Logger(),
		version:   opts.Version,
		timeout:   opts.RequestTimeout,
		heartbeat: heartbeat,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.tel.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Cache-Control", "no-store"))
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, errNotFoundRoute)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, errMethodNotAllowed)
		})

		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			if s.timeout > 0 {
				r.Use(middleware.Timeout(s.timeout))
			}
			r.Route("/life-areas", s.lifeAreaRoutes)
			r.Route("/goals", s.goalRoutes)
			r.Route("/projects", s.projectRoutes)
			r.Route("/tasks", s.taskRoutes)
			r.Route("/notes", s.noteRoutes)
			r.Route("/tags", s.tagRoutes)
			r.Route("/repository", s.repositoryRoutes)
			r.Route("/logs", s.logRoutes)
			r.Route("/backups", s.backupRoutes)
			r.Get("/jobs", s.handleListJobs)
			r.Post("/jobs/{name}/run", s.handleRunJob)
		})
	})

	return r
}

// requestLogger logs each request with zerolog once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		event := s.logger.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok", "version": s.version}
	if err := s.svc.Store().HealthCheck(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down within
// cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	return s.Serve(ctx, listener, cfg)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener, cfg config.ServerConfig) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: it would cut event streams. Other routes run
		// under RequestTimeout.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", listener.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Msg("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
