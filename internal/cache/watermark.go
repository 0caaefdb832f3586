package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignOutTTL outlives the longest access token lifetime.
const SignOutTTL = 24 * time.Hour

// SetSignOutWatermark records that tokens of userID issued before at are void.
func (c *Cache) SetSignOutWatermark(ctx context.Context, userID string, at time.Time) error {
	key := c.key("signout", userID)
	if err := c.client.Set(ctx, key, at.Unix(), SignOutTTL).Err(); err != nil {
		return fmt.Errorf("failed to set sign-out watermark: %w", err)
	}
	return nil
}

// GetSignOutWatermark returns the watermark of userID. The bool is false
// when the user never signed out.
func (c *Cache) GetSignOutWatermark(ctx context.Context, userID string) (time.Time, bool, error) {
	key := c.key("signout", userID)

	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get sign-out watermark: %w", err)
	}

	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse sign-out watermark: %w", err)
	}
	return time.Unix(sec, 0).UTC(), true, nil
}
