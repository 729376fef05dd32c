// Package permcache caches per-token read/write/override permissions for
// deployed model runtimes, so that every inference request does not have
// to round-trip to the control plane. Entries expire on a fixed TTL so a
// token's permissions (or a previously invalid token becoming valid) are
// eventually reflected without requiring an explicit invalidation signal.
package permcache

import (
	"context"
	"sync"
	"time"

	"github.com/bazaarml/controlplane/internal/telemetry"
)

// Permissions describes what a single access token may do against a
// deployment.
type Permissions struct {
	Read     bool
	Write    bool
	Override bool
}

type entry struct {
	perms  Permissions
	expiry time.Time
}

// Fetcher resolves a token's permissions from the source of truth (the
// control plane's team-membership tables).
type Fetcher func(ctx context.Context, token string) (Permissions, error)

// Cache is a TTL-expiring permission cache. A single mutex guards both the
// lookup map and the expiration queue; the queue is appended to in
// insertion order, which is also expiration order, so sweeping expired
// entries is a cheap prefix scan rather than a full map walk.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]entry
	expirations []expirationRecord
	ttl         time.Duration
	fetch       Fetcher
}

type expirationRecord struct {
	expiry time.Time
	token  string
}

func New(ttl time.Duration, fetch Fetcher) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		fetch:   fetch,
	}
}

func (c *Cache) clearExpiredLocked(now time.Time) {
	pos := 0
	for _, rec := range c.expirations {
		if rec.expiry.After(now) {
			break
		}
		delete(c.entries, rec.token)
		pos++
	}
	c.expirations = c.expirations[pos:]
}

// get returns the cached permissions for token, fetching and installing
// them if absent or expired. The fetch itself happens without holding the
// lock, so a slow lookup for one token never blocks lookups for others;
// the entry is only installed under the lock afterward.
func (c *Cache) get(ctx context.Context, token string) (Permissions, error) {
	if token == "" {
		return Permissions{}, nil
	}
	c.mu.Lock()
	now := time.Now()
	c.clearExpiredLocked(now)
	if e, ok := c.entries[token]; ok {
		c.mu.Unlock()
		telemetry.PermissionCacheHitsTotal.WithLabelValues("hit").Inc()
		return e.perms, nil
	}
	c.mu.Unlock()

	telemetry.PermissionCacheHitsTotal.WithLabelValues("miss").Inc()
	perms, err := c.fetch(ctx, token)
	if err != nil {
		return Permissions{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	exp := time.Now().Add(c.ttl)
	c.entries[token] = entry{perms: perms, expiry: exp}
	c.expirations = append(c.expirations, expirationRecord{expiry: exp, token: token})

	return perms, nil
}

func (c *Cache) CheckRead(ctx context.Context, token string) (bool, error) {
	p, err := c.get(ctx, token)
	if err != nil {
		return false, err
	}
	return p.Read, nil
}

func (c *Cache) CheckWrite(ctx context.Context, token string) (bool, error) {
	p, err := c.get(ctx, token)
	if err != nil {
		return false, err
	}
	return p.Write, nil
}

func (c *Cache) CheckOverride(ctx context.Context, token string) (bool, error) {
	p, err := c.get(ctx, token)
	if err != nil {
		return false, err
	}
	return p.Override, nil
}

// Invalidate removes a token's cached entry immediately, used when a
// deployment's access level or team membership changes.
func (c *Cache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}
