package cache

import (
	"slices"
	"sync"
)

// IDCache defines a generic interface for caching vectorized sequences.
type IDCache interface {
	// Get retrieves the ids and size stored under key.
	Get(key string) ([]int, int, bool)
	// Put stores ids and their meaningful size under key.
	Put(key string, ids []int, size int)
	// Size returns the number of items in the cache.
	Size() int
}

type entry struct {
	ids  []int
	size int
}

// MapCache is an in-memory IDCache. With a positive limit the oldest
// entries are evicted first.
type MapCache struct {
	data  map[string]entry
	order []string
	limit int
	mu    sync.RWMutex
}

func NewMapCache(limit int) *MapCache {
	return &MapCache{
		data:  make(map[string]entry),
		limit: max(limit, 0),
	}
}

func (c *MapCache) Get(key string) ([]int, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return copy to avoid modification of cached value
	if e, ok := c.data[key]; ok {
		return slices.Clone(e.ids), e.size, true
	}
	return nil, 0, false
}

func (c *MapCache) Put(key string, ids []int, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok {
		if c.limit > 0 && len(c.data) >= c.limit {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.data, oldest)
		}
		c.order = append(c.order, key)
	}
	c.data[key] = entry{ids: slices.Clone(ids), size: size}
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
