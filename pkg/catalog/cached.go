package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/weeklype/tenantrouter/pkg/tenant"
)

// Defaults for the lookup cache.
const (
	DefaultCacheTTL        = 30 * time.Second
	DefaultCacheMaxEntries = 10_000
)

// Cached fronts a catalog with a TTL cache. Status changes in the registry
// become visible after at most one TTL, or immediately after Invalidate.
type Cached struct {
	next  tenant.Catalog
	cache *ristretto.Cache[string, tenant.Record]
	ttl   time.Duration
}

// NewCached wraps next. A non-positive ttl disables caching.
func NewCached(next tenant.Catalog, ttl time.Duration, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, tenant.Record]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: create cache: %w", err)
	}
	return &Cached{next: next, cache: c, ttl: ttl}, nil
}

// Lookup implements tenant.Catalog.
func (c *Cached) Lookup(ctx context.Context, slug string) (tenant.Record, error) {
	if c.ttl <= 0 {
		return c.next.Lookup(ctx, slug)
	}
	if rec, ok := c.cache.Get(slug); ok {
		return rec, nil
	}

	rec, err := c.next.Lookup(ctx, slug)
	if err != nil {
		return tenant.Record{}, err
	}
	c.cache.SetWithTTL(slug, rec, 1, c.ttl)
	return rec, nil
}

// Invalidate drops the cached record of slug.
func (c *Cached) Invalidate(slug string) {
	c.cache.Del(slug)
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
