// Package modelentity implements C1's Model entity: the catalog record for
// a trained or in-training model, identified by (owner_username,
// model_name) and carrying the lineage, access, and lifecycle metadata
// that every other component (cluster driver, lifecycle manager, update
// log, report queue) reads.
package modelentity

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// nameRe matches the identity pair's allowed character set: lowercase
// alphanumerics, hyphens, and underscores, 1-63 characters — safe to use
// directly as a filesystem path segment and a Kubernetes-style label.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

type Type string

const (
	TypeNDB                 Type = "ndb"
	TypeUDT                 Type = "udt"
	TypeEnterpriseSearch    Type = "enterprise_search"
	TypeKnowledgeExtraction Type = "knowledge_extraction"
)

type TrainStatus string

const (
	TrainStatusNotStarted TrainStatus = "not_started"
	TrainStatusInProgress TrainStatus = "in_progress"
	TrainStatusComplete   TrainStatus = "complete"
	TrainStatusFailed     TrainStatus = "failed"
	TrainStatusStopped    TrainStatus = "stopped"
)

type AccessLevel string

const (
	AccessPrivate   AccessLevel = "private"
	AccessTeam      AccessLevel = "team"
	AccessProtected AccessLevel = "protected"
	AccessPublic    AccessLevel = "public"
)

type Model struct {
	ID            uuid.UUID       `json:"id"`
	TeamID        uuid.UUID       `json:"team_id"`
	OwnerUsername string          `json:"owner_username"`
	ModelName     string          `json:"model_name"`
	Type          Type            `json:"type"`
	Subtype       string          `json:"subtype,omitempty"`
	TrainStatus   TrainStatus     `json:"train_status"`
	AccessLevel   AccessLevel     `json:"access_level"`
	ParentID      *uuid.UUID      `json:"parent_id,omitempty"`
	Hidden        bool            `json:"hidden"`
	Meta          json.RawMessage `json:"meta,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Identity is the (owner_username, model_name) pair that uniquely names a
// model, doubling as its artifact directory within the bazaar tree.
func (m Model) Identity() string {
	return m.OwnerUsername + "/" + m.ModelName
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, m Model) (Model, error) {
	if !ValidName(m.OwnerUsername) || !ValidName(m.ModelName) {
		return Model{}, apperr.InvalidInput("owner_username and model_name must match %s", nameRe.String())
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO models
			(id, team_id, owner_username, model_name, type, subtype, train_status, access_level, parent_id, hidden, meta, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING id, created_at, updated_at
	`, m.TeamID, m.OwnerUsername, m.ModelName, m.Type, m.Subtype, m.TrainStatus, m.AccessLevel, m.ParentID, m.Hidden, m.Meta).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Model{}, apperr.Wrap(apperr.KindAlreadyExists, "a model with this owner_username/model_name already exists", err)
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Model, error) {
	return s.scanOne(ctx, `
		SELECT id, team_id, owner_username, model_name, type, subtype, train_status, access_level, parent_id, hidden, meta, created_at, updated_at
		FROM models WHERE id = $1
	`, id)
}

func (s *Store) GetByIdentity(ctx context.Context, ownerUsername, modelName string) (Model, error) {
	return s.scanOne(ctx, `
		SELECT id, team_id, owner_username, model_name, type, subtype, train_status, access_level, parent_id, hidden, meta, created_at, updated_at
		FROM models WHERE owner_username = $1 AND model_name = $2
	`, ownerUsername, modelName)
}

func (s *Store) scanOne(ctx context.Context, query string, args ...any) (Model, error) {
	var m Model
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&m.ID, &m.TeamID, &m.OwnerUsername, &m.ModelName, &m.Type, &m.Subtype,
		&m.TrainStatus, &m.AccessLevel, &m.ParentID, &m.Hidden, &m.Meta, &m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return Model{}, apperr.NotFound("model not found")
	}
	if err != nil {
		return Model{}, apperr.Internal(err, "fetching model")
	}
	return m, nil
}

func (s *Store) SetTrainStatus(ctx context.Context, id uuid.UUID, status TrainStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE models SET train_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Internal(err, "updating train status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("model not found")
	}
	return nil
}

func (s *Store) ListByTeam(ctx context.Context, teamID uuid.UUID, includeHidden bool) ([]Model, error) {
	query := `
		SELECT id, team_id, owner_username, model_name, type, subtype, train_status, access_level, parent_id, hidden, meta, created_at, updated_at
		FROM models WHERE team_id = $1`
	if !includeHidden {
		query += ` AND hidden = false`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, apperr.Internal(err, "listing models")
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.TeamID, &m.OwnerUsername, &m.ModelName, &m.Type, &m.Subtype,
			&m.TrainStatus, &m.AccessLevel, &m.ParentID, &m.Hidden, &m.Meta, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, apperr.Internal(err, "scanning model")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListStaleTraining returns models still marked in_progress whose
// updated_at is older than olderThan — used by the sweeper to reconcile
// training jobs the cluster never called back about.
func (s *Store) ListStaleTraining(ctx context.Context, olderThan time.Duration) ([]Model, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, team_id, owner_username, model_name, type, subtype, train_status, access_level, parent_id, hidden, meta, created_at, updated_at
		FROM models
		WHERE train_status = 'in_progress' AND updated_at < now() - $1::interval
	`, olderThan.String())
	if err != nil {
		return nil, apperr.Internal(err, "listing stale training models")
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		var m Model
		if err := rows.Scan(&m.ID, &m.TeamID, &m.OwnerUsername, &m.ModelName, &m.Type, &m.Subtype,
			&m.TrainStatus, &m.AccessLevel, &m.ParentID, &m.Hidden, &m.Meta, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, apperr.Internal(err, "scanning stale model")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetAccessLevel updates who may read a model and its deployments:
// private (owner team only), team, protected (read-only to other teams),
// or public.
func (s *Store) SetAccessLevel(ctx context.Context, id uuid.UUID, level AccessLevel) error {
	tag, err := s.pool.Exec(ctx, `UPDATE models SET access_level = $2, updated_at = now() WHERE id = $1`, id, level)
	if err != nil {
		return apperr.Internal(err, "updating access level")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("model not found")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM models WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "deleting model")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("model not found")
	}
	return nil
}

// AddDependency records a "used_by" edge: dependent depends on dependency
// (e.g. a workflow model using an enterprise-search base model).
func (s *Store) AddDependency(ctx context.Context, dependentID, dependencyID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_dependencies (dependent_id, dependency_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT DO NOTHING
	`, dependentID, dependencyID)
	if err != nil {
		return apperr.Internal(err, "adding model dependency")
	}
	return nil
}

func (s *Store) RemoveDependency(ctx context.Context, dependentID, dependencyID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM model_dependencies WHERE dependent_id = $1 AND dependency_id = $2
	`, dependentID, dependencyID)
	if err != nil {
		return apperr.Internal(err, "removing model dependency")
	}
	return nil
}

// Dependents returns all models that depend on the given model — used to
// block deletion of a model still in use.
func (s *Store) Dependents(ctx context.Context, dependencyID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT dependent_id FROM model_dependencies WHERE dependency_id = $1`, dependencyID)
	if err != nil {
		return nil, apperr.Internal(err, "listing model dependents")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Internal(err, "scanning dependent")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DependenciesOf returns the models a given composite model depends on
// (e.g. an enterprise-search model's NDB retriever and guardrail), the
// reverse direction of Dependents — used to cascade undeploy/delete down
// a composite model's edges once its own reference count reaches zero.
func (s *Store) DependenciesOf(ctx context.Context, dependentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT dependency_id FROM model_dependencies WHERE dependent_id = $1`, dependentID)
	if err != nil {
		return nil, apperr.Internal(err, "listing model dependencies")
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Internal(err, "scanning dependency")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
