package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apiKeyPrefixLen = 8

// APIKeyStore resolves bearer API keys to their owning identity.
type APIKeyStore struct {
	pool *pgxpool.Pool
}

func NewAPIKeyStore(pool *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{pool: pool}
}

// GenerateAPIKey returns a new raw key and its storage fields. The raw key
// is shown to the caller exactly once; only its hash is persisted.
func GenerateAPIKey() (raw, prefix, hash string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("generating api key: %w", err)
	}
	raw = "cp_" + hex.EncodeToString(buf)
	prefix = raw[:apiKeyPrefixLen]
	hash = HashAPIKey(raw)
	return raw, prefix, hash, nil
}

// HashAPIKey deterministically hashes a raw API key for lookup and storage.
// SHA-256 (not bcrypt) is used because API keys are high-entropy random
// tokens, not user-chosen passwords — a fast deterministic hash supports
// indexed lookup without a timing-unsafe linear bcrypt scan.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves a raw API key to the Identity it was issued to.
func (s *APIKeyStore) Authenticate(ctx context.Context, raw string) (Identity, error) {
	hash := HashAPIKey(raw)

	var (
		id      uuid.UUID
		teamID  uuid.UUID
		userID  uuid.UUID
		role    string
		expires *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, team_id, user_id, role, expires_at
		FROM api_keys
		WHERE key_hash = $1
	`, hash).Scan(&id, &teamID, &userID, &role, &expires)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid api key")
	}

	if expires != nil && expires.Before(time.Now()) {
		return Identity{}, fmt.Errorf("api key expired")
	}

	go s.touchLastUsed(id)

	return Identity{
		UserID:   userID,
		TeamID:   teamID,
		Role:     role,
		APIKeyID: id,
		Method:   MethodAPIKey,
	}, nil
}

func (s *APIKeyStore) touchLastUsed(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, id)
}
