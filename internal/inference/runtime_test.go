package inference

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bazaarml/controlplane/internal/audit"
	"github.com/bazaarml/controlplane/internal/permcache"
	"github.com/bazaarml/controlplane/internal/updatelog"
)

type stubEngine struct {
	response json.RawMessage
	err      error
}

func (s *stubEngine) Predict(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return s.response, s.err
}

func (s *stubEngine) Invoke(ctx context.Context, method, path string, payload json.RawMessage) (json.RawMessage, error) {
	return s.response, s.err
}

func newTestRuntime(t *testing.T, perms permcache.Permissions) *Runtime {
	t.Helper()
	cache := permcache.New(time.Minute, func(ctx context.Context, token string) (permcache.Permissions, error) {
		return perms, nil
	})
	cfg := Config{ModelID: "model-1", DeploymentID: "00000000-0000-0000-0000-000000000001", IdleTimeout: time.Hour}
	return NewRuntime(cfg, &stubEngine{response: json.RawMessage(`{"label":"ok"}`)}, cache, audit.NewWriter(nil, slog.Default()), nil, prometheus.NewRegistry(), slog.Default())
}

func TestRuntime_Predict_RequiresReadToken(t *testing.T) {
	rt := newTestRuntime(t, permcache.Permissions{Read: false})
	h := rt.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/predict", nil)
	req.Header.Set("Authorization", "Bearer no-read-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRuntime_Predict_Success(t *testing.T) {
	rt := newTestRuntime(t, permcache.Permissions{Read: true})
	h := rt.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/predict", strings.NewReader(`{"text":"x"}`))
	req.Header.Set("Authorization", "Bearer good-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRuntime_Feedback_RequiresWriteToken(t *testing.T) {
	rt := newTestRuntime(t, permcache.Permissions{Read: true, Write: false})
	h := rt.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/feedback", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer read-only-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRuntime_Metrics_RequiresNoAuth(t *testing.T) {
	rt := newTestRuntime(t, permcache.Permissions{})
	h := rt.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200 without any auth", rec.Code)
	}
}

func TestRuntime_Router_MountsExtraRoutes(t *testing.T) {
	rt := newTestRuntime(t, permcache.Permissions{Read: true})
	h := rt.Router(func(r chi.Router) {
		r.Get("/search", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/search", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("extra route status = %d, want 200", rec.Code)
	}
}

func TestRuntime_NDBRoutes_MountedForNDBModelType(t *testing.T) {
	cache := permcache.New(time.Minute, func(ctx context.Context, token string) (permcache.Permissions, error) {
		return permcache.Permissions{Read: true, Write: true}, nil
	})
	bazaarDir := t.TempDir()
	cfg := Config{
		ModelID:      "model-1",
		DeploymentID: "00000000-0000-0000-0000-000000000001",
		ModelType:    "ndb",
		AllocationID: "00000000-0000-0000-0000-000000000002",
		BazaarDir:    bazaarDir,
		IdleTimeout:  time.Hour,
	}
	rt := NewRuntime(cfg, &stubEngine{response: json.RawMessage(`{"ok":true}`)}, cache, audit.NewWriter(nil, slog.Default()), nil, prometheus.NewRegistry(), slog.Default())
	h := rt.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/insert", strings.NewReader(`{"doc":"x"}`))
	req.Header.Set("Authorization", "Bearer good-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("/insert status = %d, body = %s", rec.Code, rec.Body.String())
	}

	reader := updatelog.NewReader(bazaarDir, uuid.MustParse(cfg.DeploymentID))
	entries, err := reader.ReadAll(updatelog.KindInsert)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 recorded insert", len(entries))
	}
}

func TestRuntime_NDBRoutes_NotMountedForOtherModelTypes(t *testing.T) {
	rt := newTestRuntime(t, permcache.Permissions{Read: true, Write: true})
	h := rt.Router()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/insert", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer good-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("/insert status = %d, want 404 when model type has no NDB routes", rec.Code)
	}
}

func TestRedactToken(t *testing.T) {
	if got := redactToken("short"); got != "***" {
		t.Errorf("redactToken(short) = %q, want ***", got)
	}
	if got := redactToken("cp_abcdefghijklmnop"); got != "cp_a...mnop" {
		t.Errorf("redactToken = %q, want %q", got, "cp_a...mnop")
	}
}
