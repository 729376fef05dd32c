package permcache

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const tokenKey contextKey = "permcache_token"

func tokenFromRequest(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

// TokenFromContext returns the bearer token resolved by the guard
// middlewares, for handlers that need to thread it through to a
// downstream call.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// RequireRead rejects requests whose bearer token lacks read permission.
func (c *Cache) RequireRead(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		ok, err := c.CheckRead(r.Context(), token)
		if err != nil || !ok {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}

// RequireWrite rejects requests whose bearer token lacks write permission.
func (c *Cache) RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		ok, err := c.CheckWrite(r.Context(), token)
		if err != nil || !ok {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}

// RequireOverride rejects requests whose bearer token lacks override
// (owner-level) permission.
func (c *Cache) RequireOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		ok, err := c.CheckOverride(r.Context(), token)
		if err != nil || !ok {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, token)))
	})
}
