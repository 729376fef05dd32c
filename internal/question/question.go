// Package question implements the knowledge-extraction Question/Keyword
// entity: a model-owned set of reference questions, each carrying zero or
// more keyword annotations used to steer retrieval toward the right
// passage. Question text uniqueness is case-insensitive within a model,
// matching the source extraction pipeline's duplicate-question guard.
package question

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
)

type Question struct {
	ID        uuid.UUID `json:"id"`
	ModelID   uuid.UUID `json:"model_id"`
	Text      string    `json:"text"`
	Keywords  []string  `json:"keywords"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create adds a question to a model, rejecting it as a duplicate if an
// existing question under the same model matches case-insensitively.
func (s *Store) Create(ctx context.Context, modelID uuid.UUID, text string) (Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Question{}, apperr.InvalidInput("question text must not be empty")
	}

	var count int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM questions WHERE model_id = $1 AND text ILIKE $2
	`, modelID, text).Scan(&count); err != nil {
		return Question{}, apperr.Internal(err, "checking for duplicate question")
	}
	if count > 0 {
		return Question{}, apperr.AlreadyExists("question %q already exists for this model", text)
	}

	var q Question
	err := s.pool.QueryRow(ctx, `
		INSERT INTO questions (id, model_id, text, created_at)
		VALUES (gen_random_uuid(), $1, $2, now())
		RETURNING id, model_id, text, created_at
	`, modelID, text).Scan(&q.ID, &q.ModelID, &q.Text, &q.CreatedAt)
	if err != nil {
		return Question{}, apperr.Internal(err, "creating question")
	}
	return q, nil
}

// ListByModel returns every question owned by modelID with its keywords
// aggregated inline, newest first.
func (s *Store) ListByModel(ctx context.Context, modelID uuid.UUID) ([]Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.model_id, q.text, q.created_at,
		       coalesce(array_agg(k.text) FILTER (WHERE k.text IS NOT NULL), '{}')
		FROM questions q
		LEFT JOIN keywords k ON k.question_id = q.id
		WHERE q.model_id = $1
		GROUP BY q.id
		ORDER BY q.created_at DESC
	`, modelID)
	if err != nil {
		return nil, apperr.Internal(err, "listing questions")
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.ModelID, &q.Text, &q.CreatedAt, &q.Keywords); err != nil {
			return nil, apperr.Internal(err, "scanning question")
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Delete removes a question and its keywords, in one transaction so a
// crash mid-delete never leaves an orphaned keyword row behind.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Internal(err, "beginning question delete")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM keywords WHERE question_id = $1`, id); err != nil {
		return apperr.Internal(err, "deleting question keywords")
	}

	tag, err := tx.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "deleting question")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("question not found")
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal(err, "committing question delete")
	}
	return nil
}

// AddKeywords attaches one keyword annotation (the phrases joined with a
// space, mirroring how the extraction pipeline stores a single call's
// worth of keywords as one row) to an existing question.
func (s *Store) AddKeywords(ctx context.Context, questionID uuid.UUID, keywords []string) error {
	if len(keywords) == 0 {
		return apperr.InvalidInput("at least one keyword is required")
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT exists(SELECT 1 FROM questions WHERE id = $1)`, questionID).Scan(&exists); err != nil {
		return apperr.Internal(err, "checking question exists")
	}
	if !exists {
		return apperr.NotFound("question not found")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO keywords (id, question_id, text, created_at)
		VALUES (gen_random_uuid(), $1, $2, now())
	`, questionID, strings.Join(keywords, " "))
	if err != nil {
		return apperr.Internal(err, "adding keywords")
	}
	return nil
}
