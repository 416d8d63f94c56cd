// Package cache decorates an rbac store with a short-lived Redis cache of grants.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
)

const keyPrefix = "rbac:grants:"

// Store is the backing grant source.
type Store interface {
	GrantsFor(ctx context.Context, principalID string) ([]models.Grant, error)
	AssignRole(ctx context.Context, assignment models.Assignment) error
}

// CachedStore serves GrantsFor from Redis when possible. Entries never outlive the
// earliest assignment expiry they contain, so an expired grant is never cached.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*CachedStore)

func WithLogger(logger *slog.Logger) Option {
	return func(c *CachedStore) {
		c.logger = logger
	}
}

// WithClock overrides the wall clock used for TTL capping.
func WithClock(now func() time.Time) Option {
	return func(c *CachedStore) {
		c.now = now
	}
}

// New wraps next. A non-positive ttl disables caching.
func New(next Store, client *redis.Client, ttl time.Duration, opts ...Option) *CachedStore {
	c := &CachedStore{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func Key(principalID string) string {
	return keyPrefix + principalID
}

// GrantsFor reads through the cache. Redis failures fall back to the backing store.
func (c *CachedStore) GrantsFor(ctx context.Context, principalID string) ([]models.Grant, error) {
	if c.ttl <= 0 {
		return c.next.GrantsFor(ctx, principalID)
	}

	raw, err := c.client.Get(ctx, Key(principalID)).Bytes()
	switch {
	case err == nil:
		var grants []models.Grant
		if jsonErr := json.Unmarshal(raw, &grants); jsonErr == nil {
			return grants, nil
		}
		c.logger.WarnContext(ctx, "discarding malformed grant cache entry", "principal_id", principalID)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "grant cache read failed", "principal_id", principalID, "error", err)
	}

	grants, err := c.next.GrantsFor(ctx, principalID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, principalID, grants)
	return grants, nil
}

// AssignRole writes through and invalidates the principal's entry.
func (c *CachedStore) AssignRole(ctx context.Context, a models.Assignment) error {
	if err := c.next.AssignRole(ctx, a); err != nil {
		return err
	}
	if err := c.client.Del(ctx, Key(a.PrincipalID)).Err(); err != nil {
		return fmt.Errorf("invalidate grant cache: %w", err)
	}
	return nil
}

func (c *CachedStore) store(ctx context.Context, principalID string, grants []models.Grant) {
	ttl := c.entryTTL(grants)
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(grants)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, Key(principalID), payload, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "grant cache write failed", "principal_id", principalID, "error", err)
	}
}

func (c *CachedStore) entryTTL(grants []models.Grant) time.Duration {
	ttl := c.ttl
	now := c.now()
	for _, g := range grants {
		if g.ExpiresAt == nil || !g.ExpiresAt.After(now) {
			continue
		}
		if remaining := g.ExpiresAt.Sub(now); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}
