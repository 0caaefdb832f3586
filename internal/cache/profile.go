package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/familyshare/familyshare/internal/model"
)

const (
	// DefaultProfileTTL is the TTL for cached profile rows.
	DefaultProfileTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetProfile retrieves a cached profile by user id.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	key := c.key("profile", userID)

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	return &model.User{
		ID:        userID,
		Name:      result["name"],
		AvatarURL: result["avatar_url"],
	}, nil
}

// SetProfile caches the display fields of a profile. Contact details are
// not cached.
func (c *Cache) SetProfile(ctx context.Context, u *model.User) error {
	key := c.key("profile", u.ID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"name":       u.Name,
		"avatar_url": u.AvatarURL,
	})
	pipe.Expire(ctx, key, DefaultProfileTTL)
	pipe.Del(ctx, key+":neg")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a cached profile.
func (c *Cache) DeleteProfile(ctx context.Context, userID string) error {
	key := c.key("profile", userID)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+":neg")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete profile from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a user id is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, userID string) (bool, error) {
	key := c.key("profile", userID, "neg")

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a user id as unknown.
func (c *Cache) SetNegativeCache(ctx context.Context, userID string) error {
	key := c.key("profile", userID, "neg")

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
