// File path: internal/classifier/cache.go
package classifier

import "sync"

const defaultCacheCapacity = 1000

// Cache stores classification results keyed by normalized prompt. The
// classifier injects its cache so tests can control eviction behaviour.
type Cache interface {
	Get(key string) (*Result, bool)
	Put(key string, result *Result)
	Len() int
}

// fifoCache is a size-bounded map with oldest-first eviction.
type fifoCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	entries  map[string]*Result
}

// NewCache returns the default FIFO cache. A non-positive capacity falls
// back to the default of 1000 entries.
func NewCache(capacity int) Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &fifoCache{
		capacity: capacity,
		entries:  make(map[string]*Result, capacity),
	}
}

func (c *fifoCache) Get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return result.Clone(), true
}

func (c *fifoCache) Put(key string, result *Result) {
	if result == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		for len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = result.Clone()
}

func (c *fifoCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
