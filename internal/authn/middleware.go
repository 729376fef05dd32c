package authn

import (
	"net/http"
	"strings"

	"github.com/bazaarml/controlplane/internal/httpserver"
)

// Middleware authenticates every request by trying, in order: an
// Authorization: Bearer API key (cp_ prefix), a Bearer PAT (cpat_ prefix),
// then the session cookie. Only the first credential present is checked;
// if it does not resolve, or none is present, the request is rejected
// with 401.
type Middleware struct {
	sessions *SessionManager
	apiKeys  *APIKeyStore
	pats     *PATStore
}

func NewMiddleware(sessions *SessionManager, apiKeys *APIKeyStore, pats *PATStore) *Middleware {
	return &Middleware{sessions: sessions, apiKeys: apiKeys, pats: pats}
}

func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.resolve(r)
		if err != nil {
			httpserver.RespondErr(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func (m *Middleware) resolve(r *http.Request) (Identity, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if ok {
			switch {
			case strings.HasPrefix(token, "cp_"):
				return m.apiKeys.Authenticate(r.Context(), token)
			case strings.HasPrefix(token, "cpat_"):
				return m.pats.Authenticate(r.Context(), token)
			}
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return m.sessions.Verify(cookie.Value)
	}

	return Identity{}, errNoCredentials
}

var errNoCredentials = unauthenticatedErr{}

type unauthenticatedErr struct{}

func (unauthenticatedErr) Error() string { return "no credentials presented" }

// RequireAdmin wraps a handler to reject non-admin identities. It must run
// after Require.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		if !ok || !id.IsAdmin {
			httpserver.RespondErr(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
