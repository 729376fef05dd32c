package updatelog

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDiskGuard_AllowsWriteWithAmpleSpace(t *testing.T) {
	dir := t.TempDir()
	called := false
	h := DiskGuard(dir, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))

	if !called {
		t.Error("expected handler to run when free space exceeds the floor")
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
}

func TestDiskGuard_RejectsBelowFloor(t *testing.T) {
	dir := t.TempDir()
	called := false
	// No real filesystem has anywhere close to this much free space, so the
	// guard should trip regardless of the machine running the test.
	const impossiblyLarge = uint64(1) << 62
	h := DiskGuard(dir, impossiblyLarge)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))

	if called {
		t.Error("handler should not run when free space is below the floor")
	}
	if rec.Code != http.StatusInsufficientStorage {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInsufficientStorage)
	}
}
