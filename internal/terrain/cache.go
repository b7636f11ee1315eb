// Package terrain provides surface-height lookups for road planning: the
// Query capability implemented by the host world, a bounded memoizing cache in
// front of it, and a seeded noise terrain used by the demo service and tests.
package terrain

import (
	"sync"
	"sync/atomic"
)

// DefaultCacheLimit is the entry count at which a HeightCache clears itself.
const DefaultCacheLimit = 100_000

// Query resolves the surface height of a world column.
type Query interface {
	SurfaceHeight(x, z int) int
}

// QueryFunc adapts a plain function to Query.
type QueryFunc func(x, z int) int

// SurfaceHeight calls f(x, z).
func (f QueryFunc) SurfaceHeight(x, z int) int { return f(x, z) }

// Flat is a Query with the same height everywhere.
type Flat int

// SurfaceHeight returns the flat height.
func (f Flat) SurfaceHeight(x, z int) int { return int(f) }

type column struct{ x, z int }

// HeightCache memoizes Query results. Entries are advisory: the cache never
// evicts single columns, it drops everything once the limit is reached.
// Concurrent misses on the same column may both query; the last write wins.
type HeightCache struct {
	query Query
	limit int

	mu      sync.RWMutex
	heights map[column]int

	misses atomic.Int64
	clears atomic.Int64
}

// NewHeightCache wraps q. A limit <= 0 selects DefaultCacheLimit.
func NewHeightCache(q Query, limit int) *HeightCache {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	return &HeightCache{
		query:   q,
		limit:   limit,
		heights: make(map[column]int),
	}
}

// GetOrCompute returns the cached height of (x, z), querying the terrain on a miss.
func (c *HeightCache) GetOrCompute(x, z int) int {
	key := column{x, z}

	c.mu.RLock()
	h, ok := c.heights[key]
	c.mu.RUnlock()
	if ok {
		return h
	}

	// Query outside the lock: the terrain may be slow and recomputation is idempotent.
	h = c.query.SurfaceHeight(x, z)
	c.misses.Add(1)

	c.mu.Lock()
	if len(c.heights) >= c.limit {
		c.heights = make(map[column]int)
		c.clears.Add(1)
	}
	c.heights[key] = h
	c.mu.Unlock()
	return h
}

// Clear drops every entry.
func (c *HeightCache) Clear() {
	c.mu.Lock()
	c.heights = make(map[column]int)
	c.mu.Unlock()
	c.clears.Add(1)
}

// ClearIfOversized drops every entry when the cache holds more than limit
// entries and reports whether it did.
func (c *HeightCache) ClearIfOversized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.heights) <= c.limit {
		return false
	}
	c.heights = make(map[column]int)
	c.clears.Add(1)
	return true
}

// Len returns the number of cached columns.
func (c *HeightCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.heights)
}

// Misses returns how many times the underlying Query has been called.
func (c *HeightCache) Misses() int64 { return c.misses.Load() }

// Clears returns how many wholesale clears have happened.
func (c *HeightCache) Clears() int64 { return c.clears.Load() }
