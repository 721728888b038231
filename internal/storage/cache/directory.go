// Package cache adds a Redis read-aside layer on top of any device
// directory. Token lists are cached per user; membership reads always go to
// the real store so authorization stays fresh.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cleanslate-app/go-push-service/pkg/dispatch"
	"github.com/cleanslate-app/go-push-service/pkg/notify"
)

// TokenCache stores per-user device-token lists.
type TokenCache interface {
	// GetTokens returns the cached list, or an error on a miss.
	GetTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
	// SetTokens stores the list with a TTL.
	SetTokens(ctx context.Context, userID uuid.UUID, tokens []string, ttl time.Duration) error
	// InvalidateTokens drops the user's cached list.
	InvalidateTokens(ctx context.Context, userID uuid.UUID) error
}

// CachedDirectory is a decorator that adds read-aside caching of token
// lists to any Directory.
type CachedDirectory struct {
	realStore dispatch.Directory
	cache     TokenCache
	ttl       time.Duration
}

func NewCachedDirectory(realStore dispatch.Directory, cache TokenCache, ttl time.Duration) *CachedDirectory {
	return &CachedDirectory{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// ListTokens tries the cache first and falls back to the real store. Cache
// writes are fire-and-forget: if Redis is down we just serve from the store.
func (d *CachedDirectory) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if cached, err := d.cache.GetTokens(ctx, userID); err == nil {
		return cached, nil
	}

	fresh, err := d.realStore.ListTokens(ctx, userID)
	if err != nil {
		return nil, err
	}

	_ = d.cache.SetTokens(ctx, userID, fresh, d.ttl)
	return fresh, nil
}

// DeleteTokens writes through to the real store and invalidates the user's
// cached token list so dead tokens are never attempted again.
func (d *CachedDirectory) DeleteTokens(ctx context.Context, userID uuid.UUID, tokens []string) error {
	if err := d.realStore.DeleteTokens(ctx, userID, tokens); err != nil {
		return err
	}
	return d.cache.InvalidateTokens(ctx, userID)
}

// Membership is deliberately uncached.
func (d *CachedDirectory) Membership(ctx context.Context, householdID, userID uuid.UUID) (*notify.Membership, error) {
	return d.realStore.Membership(ctx, householdID, userID)
}
