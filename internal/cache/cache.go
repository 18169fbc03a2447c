// Package cache wraps the Redis client backing catalog.CachingCatalog's
// dataset-id existence cache, grounded on the teacher's internal/cache
// connect-and-ping pattern.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds a connected Redis client.
type Cache struct {
	client *redis.Client
}

// New parses url, connects, and pings the server before returning, so
// callers fail fast at startup rather than on the first cache lookup.
func New(url string) (*Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	slog.Info("cache connection established", "host", opt.Addr)
	return &Cache{client: client}, nil
}

// Close closes the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying *redis.Client for direct use by
// catalog.CachingCatalog.
func (c *Cache) Client() *redis.Client {
	return c.client
}
