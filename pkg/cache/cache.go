// Package cache provides a small thread-safe LRU cache for deduplicating
// expensive per-record work. Social streams repeat content heavily, reposts
// carry byte-identical bodies, so units backed by external services cache
// their results keyed on the text they were computed from.
package cache

import (
	"container/list"
	"sync"
)

// DefaultSize bounds a cache when the caller does not pick a size.
const DefaultSize = 1024

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

type entry[V any] struct {
	key   string
	value V
}

// LRU is a fixed-capacity cache evicting the least recently used entry.
// Safe for concurrent use.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	hits    int64
	misses  int64
}

// NewLRU returns a cache holding at most maxSize entries. Sizes below one
// fall back to DefaultSize.
func NewLRU[V any](maxSize int) *LRU[V] {
	if maxSize < 1 {
		maxSize = DefaultSize
	}
	return &LRU[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*entry[V]).value, true
}

// Set stores a value, evicting the least recently used entry when full.
// Updating an existing key refreshes its recency.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&entry[V]{key: key, value: value})
	c.items[key] = elem

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry[V]).key)
		}
	}
}

// Len returns the current entry count.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats reports hit and miss counts since creation.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Size: c.order.Len()}
}
