package pattern

import (
	"container/list"
	"fmt"
	"sync"
)

// DefaultCapacity is the compiled-pattern LRU's default capacity.
const DefaultCapacity = 1000

type cacheKey struct {
	pattern string
	dot     bool
	nocase  bool
}

type cacheEntry struct {
	key      cacheKey
	compiled *Compiled
}

// Cache is the global LRU of {pattern, dot, nocase} -> compiled pattern.
// Recency order, and so eviction order, is kept in a container/list
// under a mutex.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

// NewCache builds a compiled-pattern cache with the given capacity (use
// DefaultCapacity for the standard 1000).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// Get returns the compiled pattern for (pattern, opts), compiling and
// inserting it on a miss, and evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Get(pattern string, opts Options) (*Compiled, error) {
	key := cacheKey{pattern: pattern, dot: opts.Dot, nocase: opts.NoCase}

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		compiled := elem.Value.(*cacheEntry).compiled
		c.mu.Unlock()
		return compiled, nil
	}
	c.mu.Unlock()

	compiled, err := Compile(pattern, opts)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.ll.MoveToFront(elem)
		return elem.Value.(*cacheEntry).compiled, nil
	}
	elem := c.ll.PushFront(&cacheEntry{key: key, compiled: compiled})
	c.items[key] = elem
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	return compiled, nil
}

// CreateMatcher compiles pattern bypassing the shared cache entirely — the
// caller owns the returned matcher.
func CreateMatcher(pattern string, opts Options) (*Compiled, error) {
	return Compile(pattern, opts)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[cacheKey]*list.Element)
}

var global = NewCache(DefaultCapacity)

// Global returns the process-wide pattern cache.
func Global() *Cache { return global }

// ClearPatternCache clears the process-wide pattern cache.
func ClearPatternCache() { global.Clear() }
