// Package ops serves the operational surface both workers expose: liveness,
// readiness and Prometheus metrics.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	readyTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportSource serves the audit trail endpoints.
type ReportSource interface {
	LatestChangeLog(ctx context.Context) (*models.ChangeLog, error)
	RecentCycles(ctx context.Context, limit int) ([]models.CycleReport, error)
}

// DLQSource serves the dead-letter inspection endpoint.
type DLQSource interface {
	ListDLQ(ctx context.Context, limit int) ([]models.QueueEventDLQ, error)
}

// ServerParams configure the ops server. Reports and DLQ are optional; their
// endpoints are only mounted when a source is provided.
type ServerParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Checks   map[string]Pinger
	Reports  ReportSource
	DLQ      DLQSource
}

// Server is the HTTP server for health, metrics and inspection endpoints.
type Server struct {
	cfg     *config.Config
	logg    *logger.Logger
	checks  map[string]Pinger
	reports ReportSource
	dlq     DLQSource
	srv     *http.Server
}

// NewServer builds the ops server.
func NewServer(params ServerParams) (*Server, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Registry == nil {
		return nil, errors.New("metrics registry is required")
	}

	s := &Server{
		cfg:     params.Config,
		logg:    params.Logger,
		checks:  params.Checks,
		reports: params.Reports,
		dlq:     params.DLQ,
	}

	r := chi.NewRouter()
	r.Use(s.requestID, s.logging)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	if s.reports != nil {
		r.Get("/status/changelog", s.changeLog)
		r.Get("/status/cycles", s.cycles)
	}
	if s.dlq != nil {
		r.Get("/status/dlq", s.deadLetters)
	}

	s.srv = &http.Server{
		Addr:              ":" + params.Config.App.OpsPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logg.Info(s.logg.WithField(ctx, "addr", s.srv.Addr), "ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-WareSync-Env", s.cfg.App.Env)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{}
	for name, dep := range s.checks {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			body[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	writeJSON(w, status, body)
}

func (s *Server) changeLog(w http.ResponseWriter, r *http.Request) {
	log, err := s.reports.LatestChangeLog(r.Context())
	if err != nil {
		s.logg.Error(r.Context(), "load change log failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "change log unavailable"})
		return
	}
	if log == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) cycles(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)
	rows, err := s.reports.RecentCycles(r.Context(), limit)
	if err != nil {
		s.logg.Error(r.Context(), "list cycle reports failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cycle reports unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) deadLetters(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	rows, err := s.dlq.ListDLQ(r.Context(), limit)
	if err != nil {
		s.logg.Error(r.Context(), "list dead letters failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "dead letters unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := s.logg.WithField(r.Context(), "request_id", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.logg.WithFields(r.Context(), map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		ctx = s.logg.WithFields(ctx, map[string]any{
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		s.logg.Info(ctx, "request.complete")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
