package store

import (
	"context"
	"sync"
	"time"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/model"
)

// RegionLoader fetches the full region list from upstream.
type RegionLoader func(ctx context.Context) ([]model.Region, error)

// RegionCache is shared by every zone reading the same region catalogue.
// It reloads when empty, and also after TTL when TTL > 0.
type RegionCache struct {
	mu       sync.RWMutex
	regions  []model.Region
	loadedAt time.Time
	ttl      time.Duration
	clock    clock.Clock
}

func NewRegionCache(ttl time.Duration, c clock.Clock) *RegionCache {
	if c == nil {
		c = clock.System{}
	}
	return &RegionCache{ttl: ttl, clock: c}
}

// Get returns cached regions, calling load when the cache is empty or expired.
// A failed load keeps whatever was cached before.
func (c *RegionCache) Get(ctx context.Context, load RegionLoader) ([]model.Region, error) {
	c.mu.RLock()
	if c.fresh() {
		out := c.regions
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.regions, nil
	}
	regions, err := load(ctx)
	if err != nil {
		return c.regions, err
	}
	if len(regions) > 0 {
		c.regions = regions
		c.loadedAt = c.clock.Now()
	}
	return c.regions, nil
}

func (c *RegionCache) fresh() bool {
	if len(c.regions) == 0 {
		return false
	}
	return c.ttl <= 0 || c.clock.Now().Sub(c.loadedAt) < c.ttl
}

// Invalidate drops the cached list so the next Get reloads.
func (c *RegionCache) Invalidate() {
	c.mu.Lock()
	c.regions = nil
	c.mu.Unlock()
}

// Find looks a region up by name.
func (c *RegionCache) Find(name string) (model.Region, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.regions {
		if r.Name == name {
			return r, true
		}
	}
	return model.Region{}, false
}
