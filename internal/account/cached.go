package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/familyshare/familyshare/internal/cache"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

// Source is any profile lookup: the REST client or a Directory.
type Source interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
}

// ProfileCache stores display fields of profiles. *cache.Cache satisfies it.
type ProfileCache interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	SetProfile(ctx context.Context, u *model.User) error
	IsNegativelyCached(ctx context.Context, userID string) (bool, error)
	SetNegativeCache(ctx context.Context, userID string) error
}

// Cached fronts a Source with a read-through cache. Cache failures fall
// through to the source.
type Cached struct {
	source Source
	cache  ProfileCache
	logger *slog.Logger
}

// NewCached wraps source with cache.
func NewCached(source Source, c ProfileCache, logger *slog.Logger) *Cached {
	return &Cached{source: source, cache: c, logger: logger}
}

// GetProfile returns the cached profile or loads and caches it.
func (c *Cached) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	if neg, err := c.cache.IsNegativelyCached(ctx, userID); err == nil && neg {
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	}

	u, err := c.cache.GetProfile(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("profile_cache_read_failed", "user_id", userID, "error", err)
	}

	u, err = c.source.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if cerr := c.cache.SetNegativeCache(ctx, userID); cerr != nil {
				c.logger.Warn("profile_cache_write_failed", "user_id", userID, "error", cerr)
			}
		}
		return nil, err
	}

	if cerr := c.cache.SetProfile(ctx, u); cerr != nil {
		c.logger.Warn("profile_cache_write_failed", "user_id", userID, "error", cerr)
	}
	return u, nil
}
