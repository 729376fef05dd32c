// Package license enforces per-team quotas (model count, deployment
// count, concurrent training jobs) read from a JSON license file, and is
// consulted by the lifecycle manager before any job is submitted to
// the cluster driver.
package license

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/bazaarml/controlplane/internal/apperr"
)

type Quota struct {
	MaxModels            int       `json:"max_models"`
	MaxDeployments        int       `json:"max_deployments"`
	MaxConcurrentTraining int       `json:"max_concurrent_training"`
	ExpiresAt             time.Time `json:"expires_at"`
}

// Verifier loads a license file once and re-reads it on demand (so an
// operator can rotate a license without restarting the process), caching
// the parsed result for a short interval to avoid hammering the filesystem.
type Verifier struct {
	path string

	mu       sync.Mutex
	cached   Quota
	loadedAt time.Time
}

func NewVerifier(path string) *Verifier {
	return &Verifier{path: path}
}

const reloadInterval = 30 * time.Second

func (v *Verifier) load() (Quota, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if time.Since(v.loadedAt) < reloadInterval && !v.loadedAt.IsZero() {
		return v.cached, nil
	}

	raw, err := os.ReadFile(v.path)
	if err != nil {
		return Quota{}, apperr.Internal(err, "reading license file")
	}

	var q Quota
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quota{}, apperr.Internal(err, "parsing license file")
	}

	v.cached = q
	v.loadedAt = time.Now()
	return q, nil
}

// CheckModelQuota returns an error if creating one more model would
// exceed the license's model ceiling.
func (v *Verifier) CheckModelQuota(currentCount int) error {
	q, err := v.load()
	if err != nil {
		return err
	}
	if !q.ExpiresAt.IsZero() && time.Now().After(q.ExpiresAt) {
		return apperr.QuotaExceeded("license expired on %s", q.ExpiresAt.Format(time.RFC3339))
	}
	if q.MaxModels > 0 && currentCount >= q.MaxModels {
		return apperr.QuotaExceeded("model quota of %d reached", q.MaxModels)
	}
	return nil
}

func (v *Verifier) CheckDeploymentQuota(currentCount int) error {
	q, err := v.load()
	if err != nil {
		return err
	}
	if q.MaxDeployments > 0 && currentCount >= q.MaxDeployments {
		return apperr.QuotaExceeded("deployment quota of %d reached", q.MaxDeployments)
	}
	return nil
}

func (v *Verifier) CheckTrainingQuota(currentInProgress int) error {
	q, err := v.load()
	if err != nil {
		return err
	}
	if q.MaxConcurrentTraining > 0 && currentInProgress >= q.MaxConcurrentTraining {
		return apperr.QuotaExceeded("concurrent training quota of %d reached", q.MaxConcurrentTraining)
	}
	return nil
}
