// Package lifecycle implements C4: the state machine governing a model's
// journey from creation through training, deployment, retraining, and
// deletion, plus the sweeper that reconciles jobs the cluster driver
// reports nothing further about.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/artifact"
	"github.com/bazaarml/controlplane/internal/cluster"
	"github.com/bazaarml/controlplane/internal/deployment"
	"github.com/bazaarml/controlplane/internal/license"
	"github.com/bazaarml/controlplane/internal/modelentity"
	"github.com/bazaarml/controlplane/internal/updatelog"
)

// Manager drives model and deployment state transitions, submitting jobs
// to the cluster driver and enforcing license quotas before each one.
type Manager struct {
	models      *modelentity.Store
	deployments *deployment.Store
	driver      *cluster.Driver
	license     *license.Verifier
	logger      *slog.Logger

	dockerImage     string
	publicBaseURL   string
	privateBaseURL  string
	taskRunnerToken string
	bazaarDir       string
}

type Config struct {
	DockerImage     string
	PublicBaseURL   string
	PrivateBaseURL  string
	TaskRunnerToken string
	BazaarDir       string
}

func NewManager(models *modelentity.Store, deployments *deployment.Store, driver *cluster.Driver, lic *license.Verifier, logger *slog.Logger, cfg Config) *Manager {
	return &Manager{
		models:          models,
		deployments:     deployments,
		driver:          driver,
		license:         lic,
		logger:          logger,
		dockerImage:     cfg.DockerImage,
		publicBaseURL:   cfg.PublicBaseURL,
		privateBaseURL:  cfg.PrivateBaseURL,
		taskRunnerToken: cfg.TaskRunnerToken,
		bazaarDir:       cfg.BazaarDir,
	}
}

func (m *Manager) modelDir(modelID uuid.UUID) string {
	return filepath.Join(m.bazaarDir, "models", modelID.String())
}

// Train submits a training job for a model currently in not_started or
// failed state.
func (m *Manager) Train(ctx context.Context, modelID uuid.UUID) error {
	mdl, err := m.models.Get(ctx, modelID)
	if err != nil {
		return err
	}

	if mdl.TrainStatus == modelentity.TrainStatusInProgress {
		return apperr.Conflict("model %s is already training", mdl.Identity())
	}
	if mdl.TrainStatus != modelentity.TrainStatusNotStarted && mdl.TrainStatus != modelentity.TrainStatusFailed {
		return apperr.Conflict("model %s cannot be trained from status %s", mdl.Identity(), mdl.TrainStatus)
	}

	existing, err := m.models.ListByTeam(ctx, mdl.TeamID, true)
	if err != nil {
		return err
	}
	inProgress := 0
	for _, e := range existing {
		if e.TrainStatus == modelentity.TrainStatusInProgress {
			inProgress++
		}
	}
	if err := m.license.CheckTrainingQuota(inProgress); err != nil {
		return err
	}

	if _, err := m.driver.Submit(ctx, cluster.JobSpec{
		JobType:         cluster.JobTrain,
		ModelIdentity:   mdl.Identity(),
		Image:           m.dockerImage,
		CallbackURL:     m.callbackURL(mdl.ID, "train"),
		TaskRunnerToken: m.taskRunnerToken,
		MemoryHintMB:    2048,
	}); err != nil {
		return err
	}

	return m.models.SetTrainStatus(ctx, modelID, modelentity.TrainStatusInProgress)
}

// Retrain implements "retraining with feedback": it copies the base
// model's artifact tree (never symlinked) into a freshly registered
// model, unions every feedback log file ever written by any of the base
// model's deployments, and submits a retrain job referencing both. The
// base model is left untouched — including its active deployment, which
// is not paused — and the new model's parent_id records the lineage.
// The artifact copy happens at job-submission time rather than waiting
// on the base model's own deployment state.
func (m *Manager) Retrain(ctx context.Context, baseModelID uuid.UUID, newOwnerUsername, newModelName string) (modelentity.Model, error) {
	base, err := m.models.Get(ctx, baseModelID)
	if err != nil {
		return modelentity.Model{}, err
	}
	if base.TrainStatus != modelentity.TrainStatusComplete {
		return modelentity.Model{}, apperr.Conflict("model %s must be complete before retraining", base.Identity())
	}

	existing, err := m.models.ListByTeam(ctx, base.TeamID, true)
	if err != nil {
		return modelentity.Model{}, err
	}
	inProgress := 0
	for _, e := range existing {
		if e.TrainStatus == modelentity.TrainStatusInProgress {
			inProgress++
		}
	}
	if err := m.license.CheckTrainingQuota(inProgress); err != nil {
		return modelentity.Model{}, err
	}

	newModel, err := m.models.Create(ctx, modelentity.Model{
		TeamID:        base.TeamID,
		OwnerUsername: newOwnerUsername,
		ModelName:     newModelName,
		Type:          base.Type,
		Subtype:       base.Subtype,
		TrainStatus:   modelentity.TrainStatusNotStarted,
		AccessLevel:   base.AccessLevel,
		ParentID:      &base.ID,
	})
	if err != nil {
		return modelentity.Model{}, err
	}

	if err := artifact.CopyTree(m.modelDir(base.ID), m.modelDir(newModel.ID)); err != nil {
		_ = m.models.SetTrainStatus(ctx, newModel.ID, modelentity.TrainStatusFailed)
		return modelentity.Model{}, err
	}

	feedbackPath, err := m.unionFeedbackLogs(ctx, base.ID, newModel.ID)
	if err != nil {
		_ = m.models.SetTrainStatus(ctx, newModel.ID, modelentity.TrainStatusFailed)
		return modelentity.Model{}, err
	}

	if _, err := m.driver.Submit(ctx, cluster.JobSpec{
		JobType:         cluster.JobRetrain,
		ModelIdentity:   newModel.Identity(),
		Image:           m.dockerImage,
		CallbackURL:     m.callbackURL(newModel.ID, "retrain"),
		TaskRunnerToken: m.taskRunnerToken,
		MemoryHintMB:    2048,
		Extra:           map[string]string{"feedback_log_path": feedbackPath, "base_model_identity": base.Identity()},
	}); err != nil {
		_ = m.models.SetTrainStatus(ctx, newModel.ID, modelentity.TrainStatusFailed)
		return modelentity.Model{}, err
	}

	if err := m.models.SetTrainStatus(ctx, newModel.ID, modelentity.TrainStatusInProgress); err != nil {
		return modelentity.Model{}, err
	}
	newModel.TrainStatus = modelentity.TrainStatusInProgress
	return newModel, nil
}

// unionFeedbackLogs concatenates the update-log entries from every
// deployment the base model has ever had into one file under the new
// model's directory, for the training job to consume as supervised data.
func (m *Manager) unionFeedbackLogs(ctx context.Context, baseModelID, newModelID uuid.UUID) (string, error) {
	deployments, err := m.deployments.ListByModel(ctx, baseModelID)
	if err != nil {
		return "", err
	}

	var all []updatelog.Entry
	for _, d := range deployments {
		reader := updatelog.NewReader(m.bazaarDir, d.ID)
		entries, err := reader.ReadAll(updatelog.KindUpvote)
		if err != nil {
			return "", apperr.Internal(err, "reading update log for deployment %s", d.ID)
		}
		all = append(all, entries...)
	}

	outPath := filepath.Join(m.modelDir(newModelID), "feedback.jsonl")
	if err := updatelog.WriteConcatenated(outPath, all); err != nil {
		return "", err
	}
	return outPath, nil
}

// Deploy creates and submits a deployment for a completed model, enforcing
// the at-most-one-active-deployment invariant.
func (m *Manager) Deploy(ctx context.Context, modelID uuid.UUID, name string, autoscale bool, memoryHintMB int) (deployment.Deployment, error) {
	mdl, err := m.models.Get(ctx, modelID)
	if err != nil {
		return deployment.Deployment{}, err
	}
	if mdl.TrainStatus != modelentity.TrainStatusComplete {
		return deployment.Deployment{}, apperr.Conflict("model %s has not completed training", mdl.Identity())
	}

	active, err := m.deployments.ActiveForModel(ctx, modelID)
	if err != nil {
		return deployment.Deployment{}, err
	}
	if active != nil {
		return deployment.Deployment{}, apperr.Conflict("model %s already has an active deployment", mdl.Identity())
	}

	activeCount, err := m.deployments.CountActive(ctx, mdl.TeamID)
	if err != nil {
		return deployment.Deployment{}, err
	}
	if err := m.license.CheckDeploymentQuota(activeCount); err != nil {
		return deployment.Deployment{}, err
	}

	d, err := m.deployments.Create(ctx, deployment.Deployment{
		ModelID:            modelID,
		Name:                name,
		Status:              deployment.StatusNotStarted,
		AutoscalingEnabled:  autoscale,
		MemoryHintMB:        memoryHintMB,
	})
	if err != nil {
		return deployment.Deployment{}, err
	}

	if _, err := m.driver.Submit(ctx, cluster.JobSpec{
		JobType:         cluster.JobDeploy,
		ModelID:         mdl.ID.String(),
		ModelIdentity:   mdl.Identity(),
		ModelType:       string(mdl.Type),
		DeploymentID:    d.ID.String(),
		DeploymentName:  name,
		Image:           m.dockerImage,
		CallbackURL:     m.callbackURL(d.ID, "deploy"),
		TaskRunnerToken: m.taskRunnerToken,
		MemoryHintMB:    memoryHintMB,
		Autoscale:       autoscale,
	}); err != nil {
		_ = m.deployments.SetStatus(ctx, d.ID, deployment.StatusFailed)
		return deployment.Deployment{}, err
	}

	if err := m.deployments.SetStatus(ctx, d.ID, deployment.StatusStarting); err != nil {
		return deployment.Deployment{}, err
	}
	d.Status = deployment.StatusStarting

	return d, nil
}

// Undeploy stops a deployment's cluster job. Idempotent: stopping an
// already-stopped deployment succeeds.
func (m *Manager) Undeploy(ctx context.Context, deploymentID uuid.UUID) error {
	d, err := m.deployments.Get(ctx, deploymentID)
	if err != nil {
		return err
	}

	if err := m.driver.Stop(ctx, d.Name); err != nil {
		return err
	}

	return m.deployments.SetStatus(ctx, deploymentID, deployment.StatusStopped)
}

// ActiveDeploymentCount reports whether a model currently has a
// non-terminal deployment, for an inference replica's idle timer to ask
// before self-terminating: if the control plane has already moved the
// deployment to stopped or failed, the replica has nothing left to wait on.
func (m *Manager) ActiveDeploymentCount(ctx context.Context, modelID uuid.UUID) (int, error) {
	active, err := m.deployments.ActiveForModel(ctx, modelID)
	if err != nil {
		return 0, err
	}
	if active == nil {
		return 0, nil
	}
	return 1, nil
}

// ReportDeploymentStopped records that a deployment's own replica stopped
// itself after going idle, without the control plane having polled for it.
func (m *Manager) ReportDeploymentStopped(ctx context.Context, deploymentID uuid.UUID) error {
	return m.deployments.SetStatus(ctx, deploymentID, deployment.StatusStopped)
}

// UndeployModel looks up a model's active deployment (if any) and stops
// it, succeeding as a no-op when the model has nothing currently
// deployed.
func (m *Manager) UndeployModel(ctx context.Context, modelID uuid.UUID) error {
	active, err := m.deployments.ActiveForModel(ctx, modelID)
	if err != nil {
		return err
	}
	if active == nil {
		return nil
	}
	return m.Undeploy(ctx, active.ID)
}

// Delete removes a model, refusing if any other model still depends on
// it. A deployed model is undeployed first; delete is only refused if
// that undeploy itself fails, per the cascade rule in §4.4.
func (m *Manager) Delete(ctx context.Context, modelID uuid.UUID) error {
	dependents, err := m.models.Dependents(ctx, modelID)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		return apperr.Conflict("model is still used by %d other model(s)", len(dependents))
	}

	active, err := m.deployments.ActiveForModel(ctx, modelID)
	if err != nil {
		return err
	}
	if active != nil {
		if err := m.Undeploy(ctx, active.ID); err != nil {
			return apperr.Conflict("model has an active deployment and undeploy failed: %v", err)
		}
	}

	return m.models.Delete(ctx, modelID)
}

// HandleTrainCallback processes the cluster's completion callback for a
// train or retrain job.
func (m *Manager) HandleTrainCallback(ctx context.Context, modelID uuid.UUID, success bool) error {
	status := modelentity.TrainStatusComplete
	if !success {
		status = modelentity.TrainStatusFailed
	}
	return m.models.SetTrainStatus(ctx, modelID, status)
}

// HandleDeployCallback processes the cluster's completion callback for a
// deploy job.
func (m *Manager) HandleDeployCallback(ctx context.Context, deploymentID uuid.UUID, success bool) error {
	status := deployment.StatusComplete
	if !success {
		status = deployment.StatusFailed
	}
	return m.deployments.SetStatus(ctx, deploymentID, status)
}

func (m *Manager) callbackURL(id uuid.UUID, kind string) string {
	return fmt.Sprintf("%s/api/v1/lifecycle/callback/%s/%s", m.privateBaseURL, kind, id)
}
