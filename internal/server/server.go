// Package server exposes the form endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinic-forms/internal/common/config"
	apperrors "clinic-forms/internal/common/errors"
	"clinic-forms/internal/common/logger"
	"clinic-forms/internal/forms"
	"clinic-forms/internal/models"
	"clinic-forms/internal/submission"
	"clinic-forms/pkg/registry"
)

const readinessTimeout = 2 * time.Second

// Checker is a dependency /ready pings, such as Redis or Postgres.
type Checker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	config      *config.Config
	logger      logger.Logger
	router      *chi.Mux
	submissions *submission.Handler
	registry    *registry.FormRegistry
	checks      map[string]Checker
}

func NewServer(cfg *config.Config, submissions *submission.Handler, log logger.Logger, checks map[string]Checker) (*Server, error) {
	reg, err := registry.Build(forms.All(), cfg.App.Version, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build form registry: %w", err)
	}

	s := &Server{
		config:      cfg,
		logger:      log.WithFields(map[string]interface{}{"component": "server"}),
		router:      chi.NewRouter(),
		submissions: submissions,
		registry:    reg,
		checks:      checks,
	}
	s.setupMiddleware()
	s.registerRoutes()
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders(s.config.App.Environment))
	if t := config.GetDuration(s.config.Server.WriteTimeout); t > 0 {
		s.router.Use(middleware.Timeout(t))
	}
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(RequestSizeLimit(s.config.Server.MaxBodyBytes))
		r.Get("/forms", s.handleListForms)
		r.Get("/forms/{form}/schema", s.handleFormSchema)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.config.Server.RequestsPerSecond, s.config.Server.Burst))
			for _, def := range forms.All() {
				r.Post("/"+def.Name, s.submissions.For(def))
			}
			r.Post("/{form}", s.handleUnknownForm)
		})
	})
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Server.Address()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.GetDuration(s.config.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(s.config.Server.WriteTimeout),
		IdleTimeout:  config.GetDuration(s.config.Server.IdleTimeout),
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("service listening", map[string]interface{}{
			"environment": s.config.App.Environment,
			"address":     addr,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(s.config.Server.ShutdownTimeout))
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown error", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server shutdown complete", nil)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name].Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = "unavailable"
			logger.FromContext(r.Context(), s.logger).Warn("readiness check failed", map[string]interface{}{
				"dependency": name,
				"error":      err.Error(),
			})
			continue
		}
		results[name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": results}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry)
}

func (s *Server) handleFormSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "form")
	form, ok := s.registry.Lookup(name)
	if !ok {
		writeError(w, r, apperrors.NewFormNotFoundError(name))
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (s *Server) handleUnknownForm(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "form")
	if def, ok := forms.Lookup(name); ok {
		s.submissions.For(def).ServeHTTP(w, r)
		return
	}
	writeError(w, r, apperrors.NewFormNotFoundError(name))
}

func writeError(w http.ResponseWriter, r *http.Request, stdErr *apperrors.StandardError) {
	fields := map[string]interface{}{"errorCode": string(stdErr.Code)}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	logger.FromContext(r.Context(), logger.NewNoOpLogger()).Warn(stdErr.Message, fields)
	writeJSON(w, apperrors.HTTPStatus(stdErr.Code), models.SubmissionResponse{
		Success: false,
		Message: apperrors.ClientMessage(stdErr),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
