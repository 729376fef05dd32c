package lifecycle

import (
	"testing"

	"github.com/google/uuid"
)

func newTestManager(cfg Config) *Manager {
	return NewManager(nil, nil, nil, nil, nil, cfg)
}

func TestManager_ModelDir(t *testing.T) {
	id := uuid.New()
	m := newTestManager(Config{BazaarDir: "/var/bazaar"})

	want := "/var/bazaar/models/" + id.String()
	if got := m.modelDir(id); got != want {
		t.Errorf("modelDir() = %q, want %q", got, want)
	}
}

func TestManager_CallbackURL(t *testing.T) {
	id := uuid.New()
	m := newTestManager(Config{PrivateBaseURL: "http://cp-internal:8080"})

	want := "http://cp-internal:8080/api/v1/lifecycle/callback/train/" + id.String()
	if got := m.callbackURL(id, "train"); got != want {
		t.Errorf("callbackURL() = %q, want %q", got, want)
	}
}
