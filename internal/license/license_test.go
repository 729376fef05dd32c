package license

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bazaarml/controlplane/internal/apperr"
)

func writeLicense(t *testing.T, q Quota) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "license.json")
	raw, err := json.Marshal(q)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckModelQuota_UnderLimit(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxModels: 10}))
	if err := v.CheckModelQuota(5); err != nil {
		t.Errorf("CheckModelQuota() = %v, want nil", err)
	}
}

func TestCheckModelQuota_AtLimit(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxModels: 5}))
	err := v.CheckModelQuota(5)
	if err == nil {
		t.Fatal("expected quota error at limit")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindQuotaExceeded {
		t.Errorf("expected KindQuotaExceeded, got %v", err)
	}
}

func TestCheckModelQuota_ZeroMeansUnlimited(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxModels: 0}))
	if err := v.CheckModelQuota(1_000_000); err != nil {
		t.Errorf("CheckModelQuota() = %v, want nil for unlimited quota", err)
	}
}

func TestCheckDeploymentQuota_AtLimit(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxDeployments: 2}))
	if err := v.CheckDeploymentQuota(1); err != nil {
		t.Errorf("CheckDeploymentQuota(1) = %v, want nil", err)
	}
	if err := v.CheckDeploymentQuota(2); err == nil {
		t.Error("CheckDeploymentQuota(2) expected quota error")
	}
}

func TestCheckTrainingQuota_AtLimit(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxConcurrentTraining: 1}))
	if err := v.CheckTrainingQuota(0); err != nil {
		t.Errorf("CheckTrainingQuota(0) = %v, want nil", err)
	}
	if err := v.CheckTrainingQuota(1); err == nil {
		t.Error("CheckTrainingQuota(1) expected quota error")
	}
}

func TestCheckModelQuota_ExpiredLicense(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxModels: 100, ExpiresAt: time.Now().Add(-time.Hour)}))
	err := v.CheckModelQuota(0)
	if err == nil {
		t.Fatal("expected quota error for an expired license")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindQuotaExceeded {
		t.Errorf("expected KindQuotaExceeded, got %v", err)
	}
}

func TestCheckModelQuota_NotYetExpired(t *testing.T) {
	v := NewVerifier(writeLicense(t, Quota{MaxModels: 100, ExpiresAt: time.Now().Add(time.Hour)}))
	if err := v.CheckModelQuota(0); err != nil {
		t.Errorf("CheckModelQuota() = %v, want nil for a license not yet expired", err)
	}
}

func TestLoad_MissingFilePropagatesError(t *testing.T) {
	v := NewVerifier(filepath.Join(t.TempDir(), "missing.json"))
	if err := v.CheckModelQuota(0); err == nil {
		t.Error("expected error when the license file does not exist")
	}
}
