package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists and lists audit log entries.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Insert(ctx context.Context, e Entry) error {
	var ip *string
	if e.IPAddress != nil && e.IPAddress.IsValid() {
		s := e.IPAddress.String()
		ip = &s
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log
			(team_id, user_id, api_key_id, action, resource, resource_id, detail, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`,
		nullUUID(e.TeamID), e.UserID, e.APIKeyID, e.Action, e.Resource, nullUUID(e.ResourceID), e.Detail, ip, e.UserAgent,
	)
	return err
}

// Row is a single audit log entry as returned to API clients.
type Row struct {
	ID         uuid.UUID  `json:"id"`
	TeamID     uuid.UUID  `json:"team_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	APIKeyID   *uuid.UUID `json:"api_key_id,omitempty"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource"`
	ResourceID uuid.UUID  `json:"resource_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (s *Store) List(ctx context.Context, teamID uuid.UUID, limit, offset int) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, team_id, user_id, api_key_id, action, resource, resource_id, created_at
		FROM audit_log
		WHERE team_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, teamID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.TeamID, &r.UserID, &r.APIKeyID, &r.Action, &r.Resource, &r.ResourceID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
