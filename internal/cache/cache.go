// Package cache provides an in-memory chunk cache.
//
// CAS objects are immutable: a digest always names the same bytes, so
// entries can never go stale and no invalidation protocol is needed.
// The only resource to manage is memory, which a byte-budget LRU
// bounds.
package cache

import (
	"container/list"
	"sync"
)

// Cache is a byte-bounded LRU over uncompressed chunk content.
// Safe for concurrent use. This is NOT shared across processes; each
// node warms its own.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	items    map[string]*list.Element
	order    *list.List
}

// entry is one cached chunk.
type entry struct {
	key   string
	value []byte
}

// NewCache creates a cache bounded to capacity bytes. A single value
// larger than the capacity is never cached.
func NewCache(capacity int64) *Cache {
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get retrieves a value by key. The returned slice is a copy.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return nil, false
	}
	c.order.MoveToFront(elem)

	value := elem.Value.(*entry).value
	result := make([]byte, len(value))
	copy(result, value)
	return result, true
}

// Set stores a value, evicting least-recently-used entries until the
// byte budget holds.
func (c *Cache) Set(key string, value []byte) {
	if int64(len(value)) > c.capacity {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		// Same key means same immutable content; just refresh recency.
		c.order.MoveToFront(elem)
		return
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	c.items[key] = c.order.PushFront(&entry{key: key, value: valueCopy})
	c.used += int64(len(valueCopy))

	for c.used > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*entry)
		c.order.Remove(oldest)
		delete(c.items, evicted.key)
		c.used -= int64(len(evicted.value))
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Used returns the cached bytes.
func (c *Cache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}
