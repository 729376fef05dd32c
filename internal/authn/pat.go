package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PATStore resolves personal access tokens presented via the
// Authorization: Bearer header. PATs share the same high-entropy-token
// hashing scheme as API keys but are scoped to a single user rather than
// a team-wide service credential.
type PATStore struct {
	pool *pgxpool.Pool
}

func NewPATStore(pool *pgxpool.Pool) *PATStore {
	return &PATStore{pool: pool}
}

func GeneratePAT() (raw, hash string, err error) {
	raw, _, _, err = GenerateAPIKey()
	if err != nil {
		return "", "", err
	}
	raw = "cpat_" + raw[3:]
	return raw, HashAPIKey(raw), nil
}

func (s *PATStore) Authenticate(ctx context.Context, raw string) (Identity, error) {
	hash := HashAPIKey(raw)

	var (
		id      uuid.UUID
		userID  uuid.UUID
		teamID  uuid.UUID
		role    string
		expires *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT pat.id, pat.user_id, u.team_id, u.role, pat.expires_at
		FROM personal_access_tokens pat
		JOIN users u ON u.id = pat.user_id
		WHERE pat.token_hash = $1
	`, hash).Scan(&id, &userID, &teamID, &role, &expires)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid personal access token")
	}

	if expires != nil && expires.Before(time.Now()) {
		return Identity{}, fmt.Errorf("personal access token expired")
	}

	go s.touchLastUsed(id)

	return Identity{
		UserID: userID,
		TeamID: teamID,
		Role:   role,
		PATID:  id,
		Method: MethodPAT,
	}, nil
}

func (s *PATStore) touchLastUsed(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.pool.Exec(ctx, `UPDATE personal_access_tokens SET last_used_at = now() WHERE id = $1`, id)
}
