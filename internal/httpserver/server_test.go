package httpserver

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func testLogger() *slog.Logger { return slog.Default() }

func TestNewServer_Healthz(t *testing.T) {
	h := NewServer(testLogger(), Config{}, func(r chi.Router) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNewServer_Readyz_NoDependenciesConfigured(t *testing.T) {
	h := NewServer(testLogger(), Config{}, func(r chi.Router) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no DB/Redis is configured", rec.Code)
	}
}

func TestNewServer_MetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewServer(testLogger(), Config{Registry: reg}, func(r chi.Router) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNewServer_MetricsRouteCustomPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewServer(testLogger(), Config{Registry: reg, MetricsPath: "/internal/metrics"}, func(r chi.Router) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/internal/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 at the configured metrics path", rec.Code)
	}
}

func TestNewServer_MountsAPIUnderV1Prefix(t *testing.T) {
	h := NewServer(testLogger(), Config{}, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("pong"))
		})
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestNewServer_UnknownRoute404s(t *testing.T) {
	h := NewServer(testLogger(), Config{}, func(r chi.Router) {})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
