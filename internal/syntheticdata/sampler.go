package syntheticdata

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/telemetry"
)

// DefaultReservoirSize is the default cap on user-provided samples kept
// per tag name, per spec.
const DefaultReservoirSize = 100_000

// Sampler keeps at most ReservoirSize user-provided samples per tag,
// replacing an existing sample with probability
// recencyMultiplier * N / (seen + N) as new samples arrive, and deleting
// any excess afterward. All bookkeeping for a single Offer happens inside
// one transaction so the read-count-then-write is atomic under
// concurrent writers.
type Sampler struct {
	pool             *pgxpool.Pool
	reservoirSize    int
	recencyMultiplier float64
}

func NewSampler(pool *pgxpool.Pool, reservoirSize int, recencyMultiplier float64) *Sampler {
	if reservoirSize <= 0 {
		reservoirSize = DefaultReservoirSize
	}
	if recencyMultiplier <= 0 {
		recencyMultiplier = 1.0
	}
	return &Sampler{pool: pool, reservoirSize: reservoirSize, recencyMultiplier: recencyMultiplier}
}

// Offer considers text for inclusion in modelID's reservoir under tag,
// inserting it with the running reservoir-replacement probability and
// trimming any excess over the reservoir cap in the same transaction.
func (s *Sampler) Offer(ctx context.Context, modelID uuid.UUID, tag, text string) (accepted bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, apperr.Internal(err, "beginning sampler transaction")
	}
	defer tx.Rollback(ctx)

	var seen int
	if err := tx.QueryRow(ctx, `
		SELECT count(*) FROM synthetic_samples WHERE model_id = $1 AND tag = $2
	`, modelID, tag).Scan(&seen); err != nil {
		return false, apperr.Internal(err, "counting existing samples")
	}

	prob := s.recencyMultiplier * float64(s.reservoirSize) / float64(seen+s.reservoirSize)
	if prob > 1.0 {
		prob = 1.0
	}
	if rand.Float64() >= prob {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO synthetic_samples (id, model_id, tag, text, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, now())
	`, modelID, tag, text); err != nil {
		return false, apperr.Internal(err, "inserting sample")
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM synthetic_samples
		WHERE id IN (
			SELECT id FROM synthetic_samples
			WHERE model_id = $1 AND tag = $2
			ORDER BY random()
			OFFSET $3
		)
	`, modelID, tag, s.reservoirSize); err != nil {
		return false, apperr.Internal(err, "trimming reservoir")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Internal(err, "committing sampler transaction")
	}

	telemetry.SyntheticSamplesGeneratedTotal.WithLabelValues("reservoir").Inc()
	return true, nil
}

// Sample is a single reservoir-sampled record, read back for export.
type Sample struct {
	Tag  string
	Text string
}

// List returns every sample currently held for modelID, across all tags.
func (s *Sampler) List(ctx context.Context, modelID uuid.UUID) ([]Sample, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tag, text FROM synthetic_samples WHERE model_id = $1 ORDER BY tag, created_at
	`, modelID)
	if err != nil {
		return nil, apperr.Internal(err, "listing samples")
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var sm Sample
		if err := rows.Scan(&sm.Tag, &sm.Text); err != nil {
			return nil, apperr.Internal(err, "scanning sample")
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
