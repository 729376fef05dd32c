// Package reportqueue implements C6: a durable work queue for report
// generation jobs (e.g. knowledge-extraction document reports, synthetic-
// data quality reports), leased to workers with SELECT ... FOR UPDATE SKIP
// LOCKED so multiple worker processes can poll the same table without
// double-claiming a row.
package reportqueue

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
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

type Report struct {
	ID          uuid.UUID `json:"id"`
	TeamID      uuid.UUID `json:"team_id"`
	ModelID     uuid.UUID `json:"model_id"`
	Status      Status    `json:"status"`
	Attempt     int       `json:"attempt"`
	Result      []byte    `json:"result,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Store struct {
	pool          *pgxpool.Pool
	attemptBound  int
	reportTimeout time.Duration
}

// NewStore configures the queue's two tunables: attemptBound is spec's
// MAX_ATTEMPTS (a report failing this many claims stays in_progress and is
// not re-leased), reportTimeout is REPORT_TIMEOUT (how stale an
// in_progress row's updated_at must be before it's considered abandoned
// by its worker and eligible for reclaim).
func NewStore(pool *pgxpool.Pool, attemptBound int, reportTimeout time.Duration) *Store {
	return &Store{pool: pool, attemptBound: attemptBound, reportTimeout: reportTimeout}
}

func (s *Store) Enqueue(ctx context.Context, teamID, modelID uuid.UUID) (Report, error) {
	var r Report
	err := s.pool.QueryRow(ctx, `
		INSERT INTO reports (id, team_id, model_id, status, attempt, submitted_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 0, now(), now())
		RETURNING id, team_id, model_id, status, attempt, submitted_at, updated_at
	`, teamID, modelID, StatusQueued).Scan(&r.ID, &r.TeamID, &r.ModelID, &r.Status, &r.Attempt, &r.SubmittedAt, &r.UpdatedAt)
	if err != nil {
		return Report{}, apperr.Internal(err, "enqueueing report")
	}
	return r, nil
}

// ClaimNext atomically leases the oldest queued-or-abandoned report,
// skipping rows other workers currently hold a lock on so concurrent
// pollers never block each other. A report is abandoned once its
// updated_at is older than reportTimeout past the last claim — there is no
// separate lease-owner column; the attempt counter alone is the source of
// truth for who currently owns a claim, per the completion protocol's
// attempt check.
func (s *Store) ClaimNext(ctx context.Context) (*Report, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "beginning claim transaction")
	}
	defer tx.Rollback(ctx)

	var r Report
	err = tx.QueryRow(ctx, `
		SELECT id, team_id, model_id, status, attempt, submitted_at, updated_at
		FROM reports
		WHERE status = $1
		   OR (status = $2 AND attempt < $3 AND updated_at < now() - $4::interval)
		ORDER BY submitted_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, StatusQueued, StatusInProgress, s.attemptBound, s.reportTimeout.String()).
		Scan(&r.ID, &r.TeamID, &r.ModelID, &r.Status, &r.Attempt, &r.SubmittedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "claiming report")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE reports SET status = $2, attempt = attempt + 1, updated_at = now()
		WHERE id = $1
	`, r.ID, StatusInProgress); err != nil {
		return nil, apperr.Internal(err, "leasing report")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internal(err, "committing report claim")
	}

	r.Status = StatusInProgress
	r.Attempt++
	r.UpdatedAt = time.Now().UTC()
	return &r, nil
}

// Complete finalizes a report's status, but only if submittedAttempt still
// matches the row's current attempt count — otherwise the worker's lease
// went stale (REPORT_TIMEOUT elapsed and another worker reclaimed it
// first) and the completion is refused rather than silently overwriting
// the new owner's work.
func (s *Store) Complete(ctx context.Context, reportID uuid.UUID, submittedAttempt int, newStatus Status, result []byte) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reports SET status = $3, result = $4, updated_at = now()
		WHERE id = $1 AND attempt = $2
	`, reportID, submittedAttempt, newStatus, result)
	if err != nil {
		return apperr.Internal(err, "completing report")
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, reportID); err != nil {
			return err
		}
		return apperr.InvalidInput("report %s attempt %d is stale; another worker has since claimed it", reportID, submittedAttempt)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Report, error) {
	var r Report
	err := s.pool.QueryRow(ctx, `
		SELECT id, team_id, model_id, status, attempt, result, submitted_at, updated_at
		FROM reports WHERE id = $1
	`, id).Scan(&r.ID, &r.TeamID, &r.ModelID, &r.Status, &r.Attempt, &r.Result, &r.SubmittedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Report{}, apperr.NotFound("report not found")
	}
	if err != nil {
		return Report{}, apperr.Internal(err, "fetching report")
	}
	return r, nil
}

// ListByModel returns every report queued for modelID, newest first.
func (s *Store) ListByModel(ctx context.Context, modelID uuid.UUID) ([]Report, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, team_id, model_id, status, attempt, result, submitted_at, updated_at
		FROM reports WHERE model_id = $1
		ORDER BY submitted_at DESC
	`, modelID)
	if err != nil {
		return nil, apperr.Internal(err, "listing reports")
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.TeamID, &r.ModelID, &r.Status, &r.Attempt, &r.Result, &r.SubmittedAt, &r.UpdatedAt); err != nil {
			return nil, apperr.Internal(err, "scanning report")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "deleting report")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("report not found")
	}
	return nil
}
