// Package cache provides the Redis access layer: rate limits, profile
// caching and sign-out watermarks. Every key lives under one namespace so
// several deployments can share a Redis database.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes all keys unless Options overrides it.
const DefaultNamespace = "familyshare"

// Options tunes the Redis connection. Zero fields keep the defaults.
type Options struct {
	Namespace    string
	PoolSize     int
	MinIdleConns int
}

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 20
	}
	if o.MinIdleConns <= 0 {
		o.MinIdleConns = 2
	}
	return o
}

// Cache is the Redis-backed cache.
type Cache struct {
	client    *redis.Client
	namespace string
}

// New connects to redisURL and pings it.
func New(ctx context.Context, redisURL string, opts Options) (*Cache, error) {
	ro, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts = opts.withDefaults()
	ro.PoolSize = opts.PoolSize
	ro.MinIdleConns = opts.MinIdleConns
	ro.PoolTimeout = 3 * time.Second
	ro.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(ro)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &Cache{client: client, namespace: opts.Namespace}, nil
}

// NewFromClient wraps an existing client under the default namespace.
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client, namespace: DefaultNamespace}
}

// key joins parts under the namespace: "familyshare:profile:u1".
func (c *Cache) key(parts ...string) string {
	return c.namespace + ":" + strings.Join(parts, ":")
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the connection for streams and pub/sub, which live outside
// this package.
func (c *Cache) Client() *redis.Client {
	return c.client
}
