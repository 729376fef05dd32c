// Package deployment implements C1's Deployment entity: a running
// instance of a model, with its own autoscaling and resource hints,
// distinct from the model's train/retrain lifecycle.
package deployment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusStarting   Status = "starting"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusStopped    Status = "stopped"
)

type Deployment struct {
	ID                 uuid.UUID `json:"id"`
	ModelID            uuid.UUID `json:"model_id"`
	Name               string    `json:"name"`
	Status             Status    `json:"status"`
	AutoscalingEnabled bool      `json:"autoscaling_enabled"`
	MemoryHintMB       int       `json:"memory_hint_mb"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, d Deployment) (Deployment, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO deployments (id, model_id, name, status, autoscaling_enabled, memory_hint_mb, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, now(), now())
		RETURNING id, created_at, updated_at
	`, d.ModelID, d.Name, d.Status, d.AutoscalingEnabled, d.MemoryHintMB).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Deployment{}, apperr.Internal(err, "creating deployment")
	}
	return d, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Deployment, error) {
	var d Deployment
	err := s.pool.QueryRow(ctx, `
		SELECT id, model_id, name, status, autoscaling_enabled, memory_hint_mb, created_at, updated_at
		FROM deployments WHERE id = $1
	`, id).Scan(&d.ID, &d.ModelID, &d.Name, &d.Status, &d.AutoscalingEnabled, &d.MemoryHintMB, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Deployment{}, apperr.NotFound("deployment not found")
	}
	if err != nil {
		return Deployment{}, apperr.Internal(err, "fetching deployment")
	}
	return d, nil
}

// ActiveForModel returns the model's current non-stopped, non-failed
// deployment, if any — used to enforce the at-most-one-active-deployment
// invariant before starting a new one.
func (s *Store) ActiveForModel(ctx context.Context, modelID uuid.UUID) (*Deployment, error) {
	var d Deployment
	err := s.pool.QueryRow(ctx, `
		SELECT id, model_id, name, status, autoscaling_enabled, memory_hint_mb, created_at, updated_at
		FROM deployments
		WHERE model_id = $1 AND status IN ('not_started', 'starting', 'complete')
		ORDER BY created_at DESC
		LIMIT 1
	`, modelID).Scan(&d.ID, &d.ModelID, &d.Name, &d.Status, &d.AutoscalingEnabled, &d.MemoryHintMB, &d.CreatedAt, &d.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "checking active deployment")
	}
	return &d, nil
}

// CountActive returns how many deployments for the team are not stopped
// or failed — used to enforce the license's deployment quota.
func (s *Store) CountActive(ctx context.Context, teamID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM deployments d
		JOIN models m ON m.id = d.model_id
		WHERE m.team_id = $1 AND d.status IN ('not_started', 'starting', 'complete')
	`, teamID).Scan(&count)
	if err != nil {
		return 0, apperr.Internal(err, "counting active deployments")
	}
	return count, nil
}

func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.pool.Exec(ctx, `UPDATE deployments SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Internal(err, "updating deployment status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("deployment not found")
	}
	return nil
}

// ListByModel returns every deployment ever created for a model,
// including stopped and failed ones — used by retraining to union
// feedback logs across all of a base model's deployments, not just its
// currently active one.
func (s *Store) ListByModel(ctx context.Context, modelID uuid.UUID) ([]Deployment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, model_id, name, status, autoscaling_enabled, memory_hint_mb, created_at, updated_at
		FROM deployments WHERE model_id = $1
	`, modelID)
	if err != nil {
		return nil, apperr.Internal(err, "listing deployments for model")
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.ModelID, &d.Name, &d.Status, &d.AutoscalingEnabled, &d.MemoryHintMB, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, apperr.Internal(err, "scanning deployment")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListStale(ctx context.Context, statuses []Status, olderThan time.Duration) ([]Deployment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, model_id, name, status, autoscaling_enabled, memory_hint_mb, created_at, updated_at
		FROM deployments
		WHERE status = ANY($1) AND updated_at < now() - $2::interval
	`, statusStrings(statuses), olderThan.String())
	if err != nil {
		return nil, apperr.Internal(err, "listing stale deployments")
	}
	defer rows.Close()

	var out []Deployment
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.ModelID, &d.Name, &d.Status, &d.AutoscalingEnabled, &d.MemoryHintMB, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, apperr.Internal(err, "scanning deployment")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
