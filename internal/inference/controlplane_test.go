package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestActiveDeploymentCount_Success(t *testing.T) {
	var sawAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":{"active_count":2}}`))
	}))
	defer srv.Close()

	c := NewControlPlaneClient(srv.URL, "tr-token", srv.Client())
	count, err := c.ActiveDeploymentCount(context.Background(), "model-1")
	if err != nil {
		t.Fatalf("ActiveDeploymentCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if sawAuth != "Bearer tr-token" {
		t.Errorf("Authorization = %q, want %q", sawAuth, "Bearer tr-token")
	}
}

func TestActiveDeploymentCount_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewControlPlaneClient(srv.URL, "tr-token", srv.Client())
	if _, err := c.ActiveDeploymentCount(context.Background(), "model-1"); err == nil {
		t.Fatal("expected error for a non-200 response")
	}
}

func TestReportStopped_Success(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewControlPlaneClient(srv.URL, "tr-token", srv.Client())
	if err := c.ReportStopped(context.Background(), "dep-1"); err != nil {
		t.Fatalf("ReportStopped() error = %v", err)
	}
	if path != "/api/v1/lifecycle/deployments/dep-1/update-status" {
		t.Errorf("path = %q", path)
	}
}

func TestReportStopped_RejectedByControlPlane(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("unknown status"))
	}))
	defer srv.Close()

	c := NewControlPlaneClient(srv.URL, "", srv.Client())
	if err := c.ReportStopped(context.Background(), "dep-1"); err == nil {
		t.Fatal("expected error when the control plane rejects the status update")
	}
}
