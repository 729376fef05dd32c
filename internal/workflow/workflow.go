// Package workflow implements the composite-model orchestration endpoints:
// enterprise-search and knowledge-extraction models are themselves C1
// Models, but their train/deploy lifecycle is really "assemble a set of
// dependency models and drive each one," which is what this package adds
// on top of internal/lifecycle and internal/modelentity's dependency
// edges.
package workflow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/lifecycle"
	"github.com/bazaarml/controlplane/internal/modelentity"
)

// Manager assembles and drives composite models (enterprise-search,
// knowledge-extraction) over their constituent dependency models.
type Manager struct {
	models    *modelentity.Store
	lifecycle *lifecycle.Manager
	logger    *slog.Logger
}

func NewManager(models *modelentity.Store, lc *lifecycle.Manager, logger *slog.Logger) *Manager {
	return &Manager{models: models, lifecycle: lc, logger: logger}
}

// Create registers a new composite model shell (not yet carrying any
// dependency edges) of the given composite type.
func (m *Manager) Create(ctx context.Context, teamID uuid.UUID, owner, name string, typ modelentity.Type, subtype string) (modelentity.Model, error) {
	if typ != modelentity.TypeEnterpriseSearch && typ != modelentity.TypeKnowledgeExtraction {
		return modelentity.Model{}, apperr.InvalidInput("workflow type must be enterprise_search or knowledge_extraction")
	}

	return m.models.Create(ctx, modelentity.Model{
		TeamID:        teamID,
		OwnerUsername: owner,
		ModelName:     name,
		Type:          typ,
		Subtype:       subtype,
		TrainStatus:   modelentity.TrainStatusNotStarted,
		AccessLevel:   modelentity.AccessPrivate,
	})
}

// AddModels records that compositeID depends on each of dependencyIDs
// (e.g. an enterprise-search model's NDB retriever and guardrail).
func (m *Manager) AddModels(ctx context.Context, compositeID uuid.UUID, dependencyIDs []uuid.UUID) error {
	for _, depID := range dependencyIDs {
		if depID == compositeID {
			return apperr.InvalidInput("a model cannot depend on itself")
		}
		if err := m.models.AddDependency(ctx, compositeID, depID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteModels removes dependency edges from compositeID to each of
// dependencyIDs. It does not itself undeploy or delete the dependency —
// that only happens once its reference count (Dependents) reaches zero,
// decided by the caller via Stop/Delete.
func (m *Manager) DeleteModels(ctx context.Context, compositeID uuid.UUID, dependencyIDs []uuid.UUID) error {
	for _, depID := range dependencyIDs {
		if err := m.models.RemoveDependency(ctx, compositeID, depID); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that every dependency a composite model references is
// itself trained and ready, so Start does not submit a deploy job doomed
// to fail on a not-yet-complete dependency.
func (m *Manager) Validate(ctx context.Context, compositeID uuid.UUID) error {
	deps, err := m.models.DependenciesOf(ctx, compositeID)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		return apperr.InvalidInput("composite model has no dependency models configured")
	}

	for _, depID := range deps {
		dep, err := m.models.Get(ctx, depID)
		if err != nil {
			return err
		}
		if dep.TrainStatus != modelentity.TrainStatusComplete {
			return apperr.Conflict("dependency %s has not completed training", dep.Identity())
		}
	}
	return nil
}

// Start validates and then deploys every dependency model that has no
// active deployment yet, finally deploying the composite model itself.
func (m *Manager) Start(ctx context.Context, compositeID uuid.UUID, name string, autoscale bool, memoryHintMB int) error {
	if err := m.Validate(ctx, compositeID); err != nil {
		return err
	}

	deps, err := m.models.DependenciesOf(ctx, compositeID)
	if err != nil {
		return err
	}

	for _, depID := range deps {
		dep, err := m.models.Get(ctx, depID)
		if err != nil {
			return err
		}
		if _, err := m.lifecycle.Deploy(ctx, depID, dep.Identity()+"-dep", autoscale, memoryHintMB); err != nil {
			if apperr.HTTPStatus(err) != 409 {
				return err
			}
			m.logger.Info("dependency already deployed, continuing", "dependency_id", depID)
		}
	}

	_, err = m.lifecycle.Deploy(ctx, compositeID, name, autoscale, memoryHintMB)
	return err
}

// Stop undeploys the composite model, then each dependency whose live
// reference count (Dependents) has dropped to zero once this reference
// is removed — the cascade rule in the Model dependency edge invariant.
func (m *Manager) Stop(ctx context.Context, compositeID uuid.UUID) error {
	composite, err := m.models.Get(ctx, compositeID)
	if err != nil {
		return err
	}
	if err := m.undeployModel(ctx, composite.ID); err != nil {
		return err
	}

	deps, err := m.models.DependenciesOf(ctx, compositeID)
	if err != nil {
		return err
	}

	for _, depID := range deps {
		dependents, err := m.models.Dependents(ctx, depID)
		if err != nil {
			return err
		}
		remaining := 0
		for _, d := range dependents {
			if d != compositeID {
				remaining++
			}
		}
		if remaining > 0 {
			continue
		}
		if err := m.undeployModel(ctx, depID); err != nil {
			m.logger.Error("cascading undeploy failed", "dependency_id", depID, "error", err)
		}
	}
	return nil
}

// Delete removes the composite model and its dependency edges; it does
// not delete the dependency models themselves, since another composite
// model or a direct deployment may still reference them.
func (m *Manager) Delete(ctx context.Context, compositeID uuid.UUID) error {
	deps, err := m.models.DependenciesOf(ctx, compositeID)
	if err != nil {
		return err
	}
	for _, depID := range deps {
		if err := m.models.RemoveDependency(ctx, compositeID, depID); err != nil {
			return err
		}
	}
	return m.lifecycle.Delete(ctx, compositeID)
}

func (m *Manager) undeployModel(ctx context.Context, modelID uuid.UUID) error {
	// Deployment lookup happens inside lifecycle.Manager.Undeploy keyed by
	// deployment id, not model id, so the workflow manager resolves the
	// active deployment first.
	return m.lifecycle.UndeployModel(ctx, modelID)
}
