package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GispoCoding/CFSI/internal/logging"
)

// existsTTL is how long a positive existence result is trusted before
// falling back to the database again.
const existsTTL = 24 * time.Hour

// CachingCatalog wraps a Catalog and serves Exists from a Redis-backed
// existence cache before falling through to the wrapped catalog, cutting
// duplicate-URI round trips during a crawl. Grounded on the teacher's
// internal/cache/cache.go Redis wrapper.
type CachingCatalog struct {
	Catalog
	redis *redis.Client
}

// NewCachingCatalog wraps catalog with an existence cache backed by client.
func NewCachingCatalog(catalog Catalog, client *redis.Client) *CachingCatalog {
	return &CachingCatalog{Catalog: catalog, redis: client}
}

func existsKey(id string) string {
	return fmt.Sprintf("cfsi:exists:%s", id)
}

// Exists checks the Redis cache first; on a miss it falls through to the
// wrapped catalog and, if true, populates the cache with existsTTL.
func (c *CachingCatalog) Exists(ctx context.Context, id string) (bool, error) {
	key := existsKey(id)
	n, err := c.redis.Exists(ctx, key).Result()
	if err == nil && n > 0 {
		return true, nil
	}
	if err != nil {
		logging.From(ctx).Warn("existence cache read failed, falling through", "id", id, "error", err)
	}

	exists, err := c.Catalog.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		if err := c.redis.Set(ctx, key, "1", existsTTL).Err(); err != nil {
			logging.From(ctx).Warn("existence cache write failed", "id", id, "error", err)
		}
	}
	return exists, nil
}

// Add populates the existence cache on success, since a successful Add
// implies Exists should now be true without another database round trip.
func (c *CachingCatalog) Add(ctx context.Context, doc DatasetDoc) error {
	if err := c.Catalog.Add(ctx, doc); err != nil {
		return err
	}
	if err := c.redis.Set(ctx, existsKey(doc.ID), "1", existsTTL).Err(); err != nil {
		logging.From(ctx).Warn("existence cache write failed", "id", doc.ID, "error", err)
	}
	return nil
}
