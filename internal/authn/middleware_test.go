package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMiddleware_Require_ValidSessionCookie(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	want := Identity{UserID: uuid.New(), Role: "member"}
	token, err := sm.Issue(want)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMiddleware(sm, nil, nil)
	var got Identity
	h := m.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	h.ServeHTTP(rec, req)

	if got.UserID != want.UserID {
		t.Errorf("resolved identity UserID = %v, want %v", got.UserID, want.UserID)
	}
}

func TestMiddleware_Require_NoCredentialsRejected(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMiddleware(sm, nil, nil)

	called := false
	h := m.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if called {
		t.Error("handler should not run without any credentials")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_Require_InvalidSessionCookieRejected(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMiddleware(sm, nil, nil)

	h := m.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "garbage"})
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAdmin_RejectsNonAdmin(t *testing.T) {
	called := false
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/users/1/global-admin", nil)
	req = req.WithContext(WithContext(req.Context(), Identity{IsAdmin: false}))
	h.ServeHTTP(rec, req)

	if called {
		t.Error("handler should not run for a non-admin identity")
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireAdmin_RejectsMissingIdentity(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/users/1/global-admin", nil))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	called := false
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/users/1/global-admin", nil)
	req = req.WithContext(WithContext(req.Context(), Identity{IsAdmin: true}))
	h.ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to run for an admin identity")
	}
}
