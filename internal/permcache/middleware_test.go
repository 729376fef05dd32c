package permcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequireRead_RejectsMissingToken(t *testing.T) {
	c := New(time.Minute, func(ctx context.Context, token string) (Permissions, error) {
		return Permissions{Read: true}, nil
	})

	called := false
	h := c.RequireRead(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/predict", nil)
	h.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not be called without a bearer token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireRead_AllowsValidToken(t *testing.T) {
	c := New(time.Minute, func(ctx context.Context, token string) (Permissions, error) {
		return Permissions{Read: token == "good-token"}, nil
	})

	var gotToken string
	h := c.RequireRead(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/predict", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if gotToken != "good-token" {
		t.Errorf("TokenFromContext() = %q, want %q", gotToken, "good-token")
	}
}

func TestRequireWrite_RejectsReadOnlyToken(t *testing.T) {
	c := New(time.Minute, func(ctx context.Context, token string) (Permissions, error) {
		return Permissions{Read: true, Write: false}, nil
	})

	h := c.RequireWrite(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/feedback", nil)
	req.Header.Set("Authorization", "Bearer read-only-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireOverride_RejectsNonOverrideToken(t *testing.T) {
	c := New(time.Minute, func(ctx context.Context, token string) (Permissions, error) {
		return Permissions{Read: true, Write: true, Override: false}, nil
	})

	h := c.RequireOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/admin", nil)
	req.Header.Set("Authorization", "Bearer writer-token")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
