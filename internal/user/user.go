// Package user implements C1's User entity: signup, email verification,
// login, and the global-admin bootstrap path described in spec §6.
package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/authn"
)

type User struct {
	ID            uuid.UUID `json:"id"`
	TeamID        uuid.UUID `json:"team_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	IsGlobalAdmin bool      `json:"is_global_admin"`
	Verified      bool      `json:"verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Create(ctx context.Context, teamID uuid.UUID, username, email, passwordHash, role string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, team_id, username, email, password_hash, role, is_global_admin, verified, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, false, false, now())
		RETURNING id, team_id, username, email, role, is_global_admin, verified, created_at
	`, teamID, username, email, passwordHash, role).Scan(
		&u.ID, &u.TeamID, &u.Username, &u.Email, &u.Role, &u.IsGlobalAdmin, &u.Verified, &u.CreatedAt,
	)
	if err != nil {
		return User{}, apperr.Wrap(apperr.KindAlreadyExists, "creating user", err)
	}
	return u, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, team_id, username, email, role, is_global_admin, verified, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.TeamID, &u.Username, &u.Email, &u.Role, &u.IsGlobalAdmin, &u.Verified, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return User{}, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return User{}, apperr.Internal(err, "fetching user")
	}
	return u, nil
}

// Authenticate verifies email+password credentials and returns the
// resulting Identity for session issuance.
func (s *Store) Authenticate(ctx context.Context, email, password string) (authn.Identity, error) {
	var (
		id       uuid.UUID
		teamID   uuid.UUID
		role     string
		admin    bool
		verified bool
		hash     string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, team_id, role, is_global_admin, verified, password_hash
		FROM users WHERE email = $1
	`, email).Scan(&id, &teamID, &role, &admin, &verified, &hash)
	if err != nil {
		return authn.Identity{}, apperr.Unauthorized("invalid email or password")
	}

	if !authn.CheckPassword(hash, password) {
		return authn.Identity{}, apperr.Unauthorized("invalid email or password")
	}

	if !verified {
		return authn.Identity{}, apperr.Forbidden("email not verified")
	}

	return authn.Identity{
		UserID:  id,
		TeamID:  teamID,
		Role:    role,
		IsAdmin: admin,
		Method:  authn.MethodSession,
	}, nil
}

func (s *Store) MarkVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET verified = true WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "verifying user")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user %s not found", id)
	}
	return nil
}

func (s *Store) SetGlobalAdmin(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_global_admin = $2 WHERE id = $1`, id, isAdmin)
	if err != nil {
		return apperr.Internal(err, "setting global admin")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user %s not found", id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err, "deleting user")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user %s not found", id)
	}
	return nil
}
