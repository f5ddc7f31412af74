package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tmorales/waresync-backend/pkg/config"
	"github.com/tmorales/waresync-backend/pkg/db/models"
	"github.com/tmorales/waresync-backend/pkg/logger"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, checks map[string]Pinger) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.OpsPort = "9090"
	srv, err := NewServer(ServerParams{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Registry: prometheus.NewRegistry(),
		Checks:   checks,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-WareSync-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestReadyzAllHealthy(t *testing.T) {
	srv := newTestServer(t, map[string]Pinger{
		"db":    &fakePinger{},
		"redis": &fakePinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["db"] != "ok" || body["redis"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReadyzFailingDependency(t *testing.T) {
	srv := newTestServer(t, map[string]Pinger{
		"db":    &fakePinger{},
		"redis": &fakePinger{err: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["redis"] != "unavailable" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["db"] != "ok" {
		t.Fatalf("healthy dependency should still report ok: %v", body)
	}
}

func TestRequestIDPreserved(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected inbound request id echoed, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

type fakeReportSource struct {
	log       *models.ChangeLog
	logErr    error
	cycles    []models.CycleReport
	gotLimit  int
	cyclesErr error
}

func (f *fakeReportSource) LatestChangeLog(ctx context.Context) (*models.ChangeLog, error) {
	return f.log, f.logErr
}

func (f *fakeReportSource) RecentCycles(ctx context.Context, limit int) ([]models.CycleReport, error) {
	f.gotLimit = limit
	return f.cycles, f.cyclesErr
}

type fakeDLQSource struct {
	rows     []models.QueueEventDLQ
	gotLimit int
	err      error
}

func (f *fakeDLQSource) ListDLQ(ctx context.Context, limit int) ([]models.QueueEventDLQ, error) {
	f.gotLimit = limit
	return f.rows, f.err
}

func newInspectionServer(t *testing.T, reports ReportSource, dlq DLQSource) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.OpsPort = "9090"
	srv, err := NewServer(ServerParams{
		Config:   cfg,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Registry: prometheus.NewRegistry(),
		Reports:  reports,
		DLQ:      dlq,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestChangeLogEndpoint(t *testing.T) {
	source := &fakeReportSource{log: &models.ChangeLog{
		ID:      7,
		Changes: json.RawMessage(`[{"sku":"SKU-A"}]`),
		Summary: json.RawMessage(`{"changed":1}`),
	}}
	srv := newInspectionServer(t, source, nil)

	req := httptest.NewRequest(http.MethodGet, "/status/changelog", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body models.ChangeLog
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID != 7 {
		t.Fatalf("expected change log 7, got %d", body.ID)
	}
}

func TestChangeLogEndpointEmpty(t *testing.T) {
	srv := newInspectionServer(t, &fakeReportSource{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/status/changelog", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any cycle, got %d", rec.Code)
	}
}

func TestChangeLogEndpointError(t *testing.T) {
	srv := newInspectionServer(t, &fakeReportSource{logErr: errors.New("db down")}, nil)

	req := httptest.NewRequest(http.MethodGet, "/status/changelog", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestCyclesEndpointLimit(t *testing.T) {
	source := &fakeReportSource{cycles: []models.CycleReport{{}, {}}}
	srv := newInspectionServer(t, source, nil)

	req := httptest.NewRequest(http.MethodGet, "/status/cycles?limit=5", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if source.gotLimit != 5 {
		t.Fatalf("expected limit 5, got %d", source.gotLimit)
	}
}

func TestCyclesEndpointDefaultLimit(t *testing.T) {
	source := &fakeReportSource{}
	srv := newInspectionServer(t, source, nil)

	req := httptest.NewRequest(http.MethodGet, "/status/cycles?limit=bogus", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if source.gotLimit != 20 {
		t.Fatalf("expected fallback limit 20, got %d", source.gotLimit)
	}
}

func TestDeadLettersEndpoint(t *testing.T) {
	source := &fakeDLQSource{rows: []models.QueueEventDLQ{{Attempts: 3}}}
	srv := newInspectionServer(t, nil, source)

	req := httptest.NewRequest(http.MethodGet, "/status/dlq", nil)
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if source.gotLimit != 50 {
		t.Fatalf("expected default limit 50, got %d", source.gotLimit)
	}
	var body []models.QueueEventDLQ
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body) != 1 || body[0].Attempts != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatusEndpointsNotMountedWithoutSources(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/status/changelog", "/status/cycles", "/status/dlq"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.srv.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 without a source, got %d", path, rec.Code)
		}
	}
}
