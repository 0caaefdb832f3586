package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit scopes for per-user buckets.
const (
	ScopeAPI      = "api"
	ScopeCheckIn  = "checkin"
	ScopeSighting = "sighting"
)

// minBucketTTL keeps short-lived buckets around long enough to matter.
const minBucketTTL = 2 * time.Minute

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// takeToken refills the bucket at KEYS[1] by elapsed time and takes one
// token if available. Times are in milliseconds.
// Returns {allowed, whole tokens left, ms until the next token}.
var takeToken = redis.NewScript(`
local rate_ms = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then
  tokens = burst
  ts = now
end

tokens = math.min(burst, tokens + math.max(0, now - ts) * rate_ms)

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = math.ceil((1 - tokens) / rate_ms)
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return {allowed, math.floor(tokens), wait}
`)

// CheckUserRateLimit takes a token from the bucket of userID in scope.
// A non-positive rate disables the limit.
func (c *Cache) CheckUserRateLimit(ctx context.Context, scope, userID string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}, nil
	}
	return c.take(ctx, c.key("ratelimit", "user", scope, userID), ratePerSecond, burst)
}

// CheckIPRateLimit takes a token from the bucket of ip. Addresses are stored
// hashed.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.take(ctx, c.key("ratelimit", "ip", hashIP(ip)), float64(ratePerSecond), burst)
}

func (c *Cache) take(ctx context.Context, key string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	now := time.Now()
	res, err := takeToken.Run(ctx, c.client, []string{key},
		ratePerSecond/1000, burst, now.UnixMilli(), bucketTTL(ratePerSecond, burst).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected rate limit reply of %d values", len(res))
	}

	retry := time.Duration(res[2]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		ResetAt:    now.Add(refillTime(ratePerSecond, burst, res[1])),
		RetryAfter: retry,
	}, nil
}

// PerHour converts an hourly allowance to tokens per second.
func PerHour(n int) float64 {
	return float64(n) / 3600.0
}

// refillTime is how long a bucket holding remaining tokens takes to fill.
func refillTime(ratePerSecond float64, burst int, remaining int64) time.Duration {
	missing := float64(int64(burst) - remaining)
	if missing <= 0 {
		return 0
	}
	// Shave float noise so 30/h with one token missing is 120s, not 121s.
	return time.Duration(math.Ceil(missing/ratePerSecond-1e-9)) * time.Second
}

// bucketTTL lets a bucket expire once it would be full again anyway.
func bucketTTL(ratePerSecond float64, burst int) time.Duration {
	ttl := refillTime(ratePerSecond, burst, 0) + time.Second
	if ttl < minBucketTTL {
		return minBucketTTL
	}
	return ttl
}

// hashIP returns 16 hex chars of the SHA-256 of ip.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
