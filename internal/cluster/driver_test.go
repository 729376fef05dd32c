package cluster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSubmit_RendersTemplateAndSubmits(t *testing.T) {
	var parseBody, submitBody string
	var sawToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("X-Cluster-Token")
		switch r.URL.Path {
		case "/v1/jobs/parse":
			buf, _ := io.ReadAll(r.Body)
			parseBody = string(buf)
			w.Write([]byte(`{"ID":"train-m1"}`))
		case "/v1/jobs":
			buf, _ := io.ReadAll(r.Body)
			submitBody = string(buf)
			json.NewEncoder(w).Encode(map[string]string{"EvalID": "eval-123"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := New(srv.URL, "cluster-secret", srv.Client())
	evalID, err := d.Submit(context.Background(), JobSpec{
		JobType:         JobTrain,
		ModelIdentity:   "m1",
		Image:           "bazaarml/train:latest",
		CallbackURL:     "https://cp.internal/api/v1/lifecycle/callback/train/m1",
		TaskRunnerToken: "tr-token",
		MemoryHintMB:    512,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if evalID != "eval-123" {
		t.Errorf("evalID = %q, want %q", evalID, "eval-123")
	}
	if sawToken != "cluster-secret" {
		t.Errorf("X-Cluster-Token = %q, want %q", sawToken, "cluster-secret")
	}
	if !strings.Contains(parseBody, `job "train-m1"`) {
		t.Errorf("rendered template missing job name: %s", parseBody)
	}
	if !strings.Contains(parseBody, "MODEL_IDENTITY") {
		t.Errorf("rendered template missing MODEL_IDENTITY env: %s", parseBody)
	}
	if !strings.Contains(submitBody, `"Job"`) {
		t.Errorf("submit payload missing Job wrapper: %s", submitBody)
	}
}

func TestSubmit_UnknownJobType(t *testing.T) {
	d := New("http://unused", "", http.DefaultClient)
	_, err := d.Submit(context.Background(), JobSpec{JobType: "bogus"})
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}
}

func TestSubmit_ParseRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid HCL"))
	}))
	defer srv.Close()

	d := New(srv.URL, "", srv.Client())
	_, err := d.Submit(context.Background(), JobSpec{JobType: JobDeploy})
	if err == nil {
		t.Fatal("expected error when scheduler rejects the parsed spec")
	}
}

func TestExists_NotFoundMeansFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(srv.URL, "", srv.Client())
	ok, err := d.Exists(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("expected Exists() = false for a 404")
	}
}

func TestExists_OKMeansTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.URL, "", srv.Client())
	ok, err := d.Exists(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !ok {
		t.Error("expected Exists() = true for a 200")
	}
}

func TestStop_NotFoundIsTreatedAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(srv.URL, "", srv.Client())
	if err := d.Stop(context.Background(), "already-gone"); err != nil {
		t.Errorf("Stop() on a 404 should be treated as success, got error: %v", err)
	}
}

func TestStop_OtherErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("scheduler down"))
	}))
	defer srv.Close()

	d := New(srv.URL, "", srv.Client())
	if err := d.Stop(context.Background(), "job-1"); err == nil {
		t.Error("expected Stop() to propagate a non-404 scheduler error")
	}
}
