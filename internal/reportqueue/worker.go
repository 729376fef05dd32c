package reportqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/bazaarml/controlplane/internal/telemetry"
)

// Generator produces the report body for a claimed report row.
type Generator func(ctx context.Context, r Report) ([]byte, error)

// Worker polls the store on a fixed interval, claiming and processing one
// report per tick per worker instance. Workers are stateless — concurrency
// safety comes from the store's SELECT ... FOR UPDATE SKIP LOCKED claim and
// the completion protocol's attempt check, never from in-process
// coordination — so running several Workers concurrently (e.g. from
// errgroup, or as separate processes) is always safe.
type Worker struct {
	store    *Store
	generate Generator
	interval time.Duration
	logger   *slog.Logger
}

func NewWorker(store *Store, generate Generator, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		generate: generate,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, polling until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	report, err := w.store.ClaimNext(ctx)
	if err != nil {
		w.logger.Error("claiming report", "error", err)
		return
	}
	if report == nil {
		return
	}

	telemetry.ReportLeasesClaimedTotal.Inc()

	result, err := w.generate(ctx, *report)
	if err != nil {
		w.logger.Error("generating report", "error", err, "report_id", report.ID)
		if report.Attempt >= w.store.attemptBound {
			telemetry.ReportAttemptsExhaustedTotal.Inc()
		}
		return
	}

	if err := w.store.Complete(ctx, report.ID, report.Attempt, StatusComplete, result); err != nil {
		w.logger.Error("completing report", "error", err, "report_id", report.ID)
	}
}
