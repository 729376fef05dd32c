package authn

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

const SessionCookieName = "controlplane_session"

// sessionClaims is the payload of a session JWT.
type sessionClaims struct {
	jwt.Claims
	UserID  uuid.UUID `json:"uid"`
	TeamID  uuid.UUID `json:"tid"`
	Role    string    `json:"role"`
	IsAdmin bool      `json:"admin"`
}

// SessionManager issues and validates HMAC-signed session tokens.
type SessionManager struct {
	signer jose.Signer
	key    []byte
	maxAge time.Duration
}

func NewSessionManager(secret string, maxAge time.Duration) (*SessionManager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	key := []byte(secret)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("creating session signer: %w", err)
	}

	return &SessionManager{signer: signer, key: key, maxAge: maxAge}, nil
}

// GenerateDevSecret returns a random secret suitable for local development
// only — it is not persisted, so sessions do not survive a restart.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// Issue creates a signed session token for the given identity.
func (sm *SessionManager) Issue(id Identity) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Claims: jwt.Claims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(sm.maxAge)),
			ID:        uuid.NewString(),
		},
		UserID:  id.UserID,
		TeamID:  id.TeamID,
		Role:    id.Role,
		IsAdmin: id.IsAdmin,
	}

	return jwt.Signed(sm.signer).Claims(claims).Serialize()
}

// Verify parses and validates a session token, returning the Identity it encodes.
func (sm *SessionManager) Verify(token string) (Identity, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Identity{}, fmt.Errorf("parsing session token: %w", err)
	}

	var claims sessionClaims
	if err := parsed.Claims(sm.key, &claims); err != nil {
		return Identity{}, fmt.Errorf("verifying session token: %w", err)
	}

	if err := claims.Claims.Validate(jwt.Expected{}); err != nil {
		return Identity{}, fmt.Errorf("session token expired or invalid: %w", err)
	}

	return Identity{
		UserID:  claims.UserID,
		TeamID:  claims.TeamID,
		Role:    claims.Role,
		IsAdmin: claims.IsAdmin,
		Method:  MethodSession,
	}, nil
}

// SetCookie writes the session token as an HttpOnly, SameSite=Lax cookie.
func (sm *SessionManager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.maxAge.Seconds()),
	})
}

// ClearCookie expires the session cookie immediately (logout).
func (sm *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
