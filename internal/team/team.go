// Package team implements C1's Team and TeamMembership entities: the unit
// of ownership and access control for models and deployments.
package team

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Membership struct {
	TeamID   uuid.UUID `json:"team_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, name string, ownerID uuid.UUID) (Team, error) {
	var t Team

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Team{}, apperr.Internal(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `
		INSERT INTO teams (id, name, created_at)
		VALUES (gen_random_uuid(), $1, now())
		RETURNING id, name, created_at
	`, name).Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
		return Team{}, apperr.Internal(err, "creating team")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO team_memberships (team_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, now())
	`, t.ID, ownerID, RoleOwner); err != nil {
		return Team{}, apperr.Internal(err, "adding team owner")
	}

	if err := tx.Commit(ctx); err != nil {
		return Team{}, apperr.Internal(err, "committing team creation")
	}

	return t, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (Team, error) {
	var t Team
	err := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM teams WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return Team{}, apperr.NotFound("team %s not found", id)
	}
	if err != nil {
		return Team{}, apperr.Internal(err, "fetching team")
	}
	return t, nil
}

func (s *Store) AddMember(ctx context.Context, teamID, userID uuid.UUID, role Role) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO team_memberships (team_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role
	`, teamID, userID, role)
	if err != nil {
		return apperr.Internal(err, "adding team member")
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM team_memberships WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return apperr.Internal(err, "removing team member")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("membership not found")
	}
	return nil
}

func (s *Store) RoleOf(ctx context.Context, teamID, userID uuid.UUID) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `
		SELECT role FROM team_memberships WHERE team_id = $1 AND user_id = $2
	`, teamID, userID).Scan(&role)
	if err == pgx.ErrNoRows {
		return "", apperr.Forbidden("not a member of this team")
	}
	if err != nil {
		return "", apperr.Internal(err, "resolving team role")
	}
	return role, nil
}

func (s *Store) Members(ctx context.Context, teamID uuid.UUID) ([]Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT team_id, user_id, role, joined_at FROM team_memberships WHERE team_id = $1 ORDER BY joined_at
	`, teamID)
	if err != nil {
		return nil, apperr.Internal(err, "listing team members")
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
			return nil, apperr.Internal(err, "scanning membership")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
