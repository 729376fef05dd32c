package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPEngine_Predict_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("path = %q, want /predict", r.URL.Path)
		}
		w.Write([]byte(`{"label":"positive"}`))
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.URL, srv.Client())
	out, err := e.Predict(context.Background(), json.RawMessage(`{"text":"great"}`))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if string(out) != `{"label":"positive"}` {
		t.Errorf("Predict() = %s", out)
	}
}

func TestHTTPEngine_Predict_EngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model crashed"))
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.URL, srv.Client())
	_, err := e.Predict(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error when the engine returns a non-200 status")
	}
}

func TestHTTPEngine_Predict_Unreachable(t *testing.T) {
	e := NewHTTPEngine("http://127.0.0.1:1", http.DefaultClient)
	_, err := e.Predict(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error when the engine is unreachable")
	}
}
