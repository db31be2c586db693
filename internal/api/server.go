// Package api exposes the HTTP interface for the tracker service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plugwatch/plugwatch/internal/export"
	"github.com/plugwatch/plugwatch/internal/ingest"
	"github.com/plugwatch/plugwatch/internal/metrics"
	"github.com/plugwatch/plugwatch/internal/normalize"
	"github.com/plugwatch/plugwatch/internal/review"
)

var validSlug = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Config controls server-level toggles.
type Config struct {
	AuthEnabled bool
	APIKey      string
}

// Server wires HTTP handlers to the run manager and store.
type Server struct {
	router    chi.Router
	store     review.PluginStore
	manager   *ingest.Manager
	importer  *export.Importer
	directory review.Directory
	clock     review.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store review.PluginStore,
	manager *ingest.Manager,
	importer *export.Importer,
	directory review.Directory,
	clock review.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:     store,
		manager:   manager,
		importer:  importer,
		directory: directory,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/plugins", func(r chi.Router) {
			r.Get("/", s.listPlugins)
			r.Post("/", s.addPlugin)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", s.getPlugin)
				r.Delete("/", s.deletePlugin)
				r.Post("/refresh", s.refreshPlugin)
			})
		})
		r.Get("/runs/{run_id}", s.getRun)
		r.Get("/export", s.exportPlugins)
		r.Post("/import", s.importPlugins)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.List(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list plugins")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"plugins": records})
}

type addPluginRequest struct {
	Slug string `json:"slug"`
}

func (s *Server) addPlugin(w http.ResponseWriter, r *http.Request) {
	var req addPluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !validSlug.MatchString(slug) {
		s.writeError(w, http.StatusBadRequest, "invalid slug")
		return
	}
	if _, err := s.store.Load(r.Context(), slug); err == nil {
		s.writeError(w, http.StatusConflict, "plugin already tracked")
		return
	}

	// Unknown slugs are a validation failure for the add flow, not an
	// ingestion error.
	name, err := s.directory.LookupName(r.Context(), slug)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "plugin does not exist")
		return
	}

	record := review.PluginRecord{
		Slug:        slug,
		Name:        normalize.CleanName(name),
		Reviews:     []review.Review{},
		LastUpdated: s.clock.Now(),
	}
	if err := s.store.Save(r.Context(), record); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to save plugin")
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

func (s *Server) getPlugin(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	record, err := s.store.Load(r.Context(), slug)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) deletePlugin(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := s.store.Delete(r.Context(), slug); err != nil {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"slug": slug, "status": "deleted"})
}

type refreshRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) refreshPlugin(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	mode := review.ModeListing
	if r.ContentLength != 0 {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if req.Mode != "" {
			mode = review.FeedMode(req.Mode)
		}
	}

	runID, err := s.manager.StartRefresh(slug, mode)
	switch {
	case errors.Is(err, review.ErrRunInFlight):
		s.writeError(w, http.StatusConflict, "refresh already in flight")
		return
	case errors.Is(err, review.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.manager.GetRun(runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) exportPlugins(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list plugins")
		return
	}
	data, err := export.Marshal(records)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to marshal export")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("export write failed", zap.Error(err))
	}
}

func (s *Server) importPlugins(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	count, err := s.importer.Import(r.Context(), payload)
	switch {
	case errors.Is(err, review.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"imported": count})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
			logger.Info("request completed",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

const maxImportBytes = 32 << 20

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return data, nil
}
