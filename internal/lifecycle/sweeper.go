package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/bazaarml/controlplane/internal/deployment"
	"github.com/bazaarml/controlplane/internal/modelentity"
	"github.com/bazaarml/controlplane/internal/telemetry"
)

// Sweeper periodically reconciles models and deployments stuck in an
// in-progress state longer than the cluster would plausibly still be
// working on them — the cluster's own callback may have been lost, or the
// job itself may have died without ever calling back.
type Sweeper struct {
	manager     *Manager
	models      *modelentity.Store
	deployments *deployment.Store
	interval    time.Duration
	staleAfter  time.Duration
	logger      *slog.Logger
}

func NewSweeper(manager *Manager, models *modelentity.Store, deployments *deployment.Store, interval, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		manager:     manager,
		models:      models,
		deployments: deployments,
		interval:    interval,
		staleAfter:  staleAfter,
		logger:      logger,
	}
}

// Run blocks, sweeping on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	defer func() {
		telemetry.SweeperRunDuration.Observe(time.Since(start).Seconds())
	}()

	stale, err := s.deployments.ListStale(ctx, []deployment.Status{deployment.StatusStarting}, s.staleAfter)
	if err != nil {
		s.logger.Error("listing stale deployments", "error", err)
		return
	}

	for _, d := range stale {
		s.logger.Warn("reconciling stale deployment", "deployment_id", d.ID, "name", d.Name)
		if err := s.deployments.SetStatus(ctx, d.ID, deployment.StatusFailed); err != nil {
			s.logger.Error("marking deployment failed", "error", err, "deployment_id", d.ID)
			continue
		}
		telemetry.SweeperReconciledTotal.Inc()
	}

	staleModels, err := s.models.ListStaleTraining(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("listing stale training models", "error", err)
		return
	}

	for _, m := range staleModels {
		s.logger.Warn("reconciling stale training model", "model_id", m.ID, "identity", m.Identity())
		if err := s.models.SetTrainStatus(ctx, m.ID, modelentity.TrainStatusFailed); err != nil {
			s.logger.Error("marking model training failed", "error", err, "model_id", m.ID)
			continue
		}
		telemetry.SweeperReconciledTotal.Inc()
	}
}
