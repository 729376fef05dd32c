// Package vault implements the encrypted secrets store behind the
// vault/add-secret and vault/get-secret endpoints: a thin key-value table
// over C1 (models/teams) whose values are sealed with
// golang.org/x/crypto/nacl/secretbox before they ever reach Postgres.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/bazaarml/controlplane/internal/apperr"
)

const keySize = 32

// Key is the symmetric secretbox key every secret in this process is
// sealed and opened with. It never leaves memory; only the resulting
// ciphertext is persisted.
type Key [keySize]byte

// KeyFromString derives a Key from an operator-supplied base64 or raw
// string, requiring it decode to exactly 32 bytes — secretbox's XSalsa20
// key size, same choice the teacher makes for its bcrypt cost, a fixed,
// deliberately unconfigurable cryptographic parameter.
func KeyFromString(s string) (Key, error) {
	var key Key
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(decoded) != keySize {
		if len(s) == keySize {
			copy(key[:], s)
			return key, nil
		}
		return Key{}, apperr.InvalidInput("vault key must decode to exactly %d bytes", keySize)
	}
	copy(key[:], decoded)
	return key, nil
}

// Store seals and unseals secret values scoped to a team.
type Store struct {
	pool *pgxpool.Pool
	key  Key
}

func NewStore(pool *pgxpool.Pool, key Key) *Store {
	return &Store{pool: pool, key: key}
}

// seal encrypts plaintext under a fresh random nonce, prepending the
// nonce to the ciphertext so Open has everything it needs from one blob.
func (s *Store) seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, apperr.Internal(err, "generating nonce")
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, (*[keySize]byte)(&s.key)), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, apperr.Internal(nil, "sealed secret is truncated")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, (*[keySize]byte)(&s.key))
	if !ok {
		return nil, apperr.Internal(nil, "secret failed to decrypt: wrong key or corrupted data")
	}
	return plaintext, nil
}

// AddSecret seals value and upserts it under (teamID, name).
func (s *Store) AddSecret(ctx context.Context, teamID uuid.UUID, name, value string) error {
	sealed, err := s.seal([]byte(value))
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO vault_secrets (team_id, name, sealed_value, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (team_id, name) DO UPDATE SET sealed_value = $3, updated_at = now()
	`, teamID, name, sealed)
	if err != nil {
		return apperr.Internal(err, "storing secret")
	}
	return nil
}

// GetSecret unseals and returns the named secret for a team.
func (s *Store) GetSecret(ctx context.Context, teamID uuid.UUID, name string) (string, error) {
	var sealed []byte
	err := s.pool.QueryRow(ctx, `
		SELECT sealed_value FROM vault_secrets WHERE team_id = $1 AND name = $2
	`, teamID, name).Scan(&sealed)
	if err == pgx.ErrNoRows {
		return "", apperr.NotFound("secret %q not found", name)
	}
	if err != nil {
		return "", apperr.Internal(err, "fetching secret")
	}

	plaintext, err := s.open(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DeleteSecret removes a team's named secret.
func (s *Store) DeleteSecret(ctx context.Context, teamID uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vault_secrets WHERE team_id = $1 AND name = $2`, teamID, name)
	if err != nil {
		return apperr.Internal(err, "deleting secret")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("secret %q not found", name)
	}
	return nil
}
