// Package cascache implements the CAS existence cache and optional
// object cache: a bloom filter giving O(1) "definitely-not-exists", a
// TTL-bounded positive cache for confirmed existence, and an optional
// LRU over decompressed objects. CachedStore composes both onto a
// cas.Store, kept coherent through the store's put/delete hooks.
package cascache

import (
	"container/list"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/posixfs/posixfs/internal/cas"
)

// ExistenceCache answers "does this hash exist in the store" using a bloom
// filter for negative answers and a TTL-bounded positive cache for
// confirmed positives.
type ExistenceCache struct {
	mu sync.Mutex

	filter *bloom.BloomFilter

	positiveTTL time.Duration
	maxPositive int
	positive    map[string]*list.Element
	lru         *list.List // front = most recently confirmed
}

type positiveEntry struct {
	hash       string
	confirmedAt time.Time
}

// ExistenceCacheOptions configures an ExistenceCache.
type ExistenceCacheOptions struct {
	ExpectedItems     uint
	FalsePositiveRate float64
	PositiveTTL       time.Duration
	MaxPositiveEntries int
}

// DefaultExistenceCacheOptions mirrors the documented defaults: 100k items,
// 1% false-positive rate, 60s TTL, 10000 max positive entries.
func DefaultExistenceCacheOptions() ExistenceCacheOptions {
	return ExistenceCacheOptions{
		ExpectedItems:      100_000,
		FalsePositiveRate:  0.01,
		PositiveTTL:        60 * time.Second,
		MaxPositiveEntries: 10_000,
	}
}

// NewExistenceCache builds an ExistenceCache. Zero-valued fields in opts
// fall back to DefaultExistenceCacheOptions.
func NewExistenceCache(opts ExistenceCacheOptions) *ExistenceCache {
	def := DefaultExistenceCacheOptions()
	if opts.ExpectedItems == 0 {
		opts.ExpectedItems = def.ExpectedItems
	}
	if opts.FalsePositiveRate == 0 {
		opts.FalsePositiveRate = def.FalsePositiveRate
	}
	if opts.PositiveTTL == 0 {
		opts.PositiveTTL = def.PositiveTTL
	}
	if opts.MaxPositiveEntries == 0 {
		opts.MaxPositiveEntries = def.MaxPositiveEntries
	}

	return &ExistenceCache{
		filter:      bloom.NewWithEstimates(opts.ExpectedItems, opts.FalsePositiveRate),
		positiveTTL: opts.PositiveTTL,
		maxPositive: opts.MaxPositiveEntries,
		positive:    make(map[string]*list.Element),
		lru:         list.New(),
	}
}

// Check returns (true, true) on a confirmed positive hit, (false, true) on
// a definitive bloom rejection, or (false, false) when storage must be
// consulted.
func (c *ExistenceCache) Check(hash string) (exists bool, known bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.positive[hash]; ok {
		entry := el.Value.(*positiveEntry)
		if time.Since(entry.confirmedAt) <= c.positiveTTL {
			c.lru.MoveToFront(el)
			return true, true
		}
		c.removeLocked(hash, el)
	}

	if !c.filter.Test([]byte(hash)) {
		return false, true
	}
	return false, false
}

// Record updates both caches with a confirmed (or refuted) existence
// answer for hash.
func (c *ExistenceCache) Record(hash string, exists bool) {
	if exists {
		c.RecordPut(hash)
	} else {
		c.RecordDelete(hash)
	}
}

// RecordPut marks hash as existing: adds it to the bloom filter and to the
// positive cache, evicting the least-recently-confirmed entry if the
// positive cache is full.
func (c *ExistenceCache) RecordPut(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filter.Add([]byte(hash))

	if el, ok := c.positive[hash]; ok {
		el.Value.(*positiveEntry).confirmedAt = time.Now()
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&positiveEntry{hash: hash, confirmedAt: time.Now()})
	c.positive[hash] = el

	for len(c.positive) > c.maxPositive {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*positiveEntry).hash, back)
	}
}

// RecordDelete removes hash from the positive cache. The bloom filter
// cannot un-learn a member; a subsequent Check may still return
// "must consult storage" rather than a false "exists", which is
// acceptable because Check treats a bloom hit as inconclusive, not as a
// guarantee.
func (c *ExistenceCache) RecordDelete(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.positive[hash]; ok {
		c.removeLocked(hash, el)
	}
}

func (c *ExistenceCache) removeLocked(hash string, el *list.Element) {
	c.lru.Remove(el)
	delete(c.positive, hash)
}

// ObjectCacheStats reports the optional object cache's counters.
type ObjectCacheStats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	HitRatio   float64
	EntryCount int
	MaxEntries int
	MaxBytes   int64
}

type objectEntry struct {
	hash string
	typ  cas.ObjectType
	data []byte
}

// ObjectCache is an optional LRU over decompressed CAS objects, bounded by
// entry count and total bytes.
type ObjectCache struct {
	mu sync.Mutex

	maxEntries int
	maxBytes   int64

	items      map[string]*list.Element
	lru        *list.List
	totalBytes int64

	hits, misses, evictions int64
}

// ObjectCacheOptions configures an ObjectCache.
type ObjectCacheOptions struct {
	MaxEntries int
	MaxBytes   int64
}

// NewObjectCache builds an ObjectCache.
func NewObjectCache(opts ObjectCacheOptions) *ObjectCache {
	return &ObjectCache{
		maxEntries: opts.MaxEntries,
		maxBytes:   opts.MaxBytes,
		items:      make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// Get returns the cached object for hash, if present.
func (o *ObjectCache) Get(hash string) (typ cas.ObjectType, data []byte, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	el, found := o.items[hash]
	if !found {
		o.misses++
		return "", nil, false
	}
	o.lru.MoveToFront(el)
	o.hits++
	entry := el.Value.(*objectEntry)
	out := make([]byte, len(entry.data))
	copy(out, entry.data)
	return entry.typ, out, true
}

// Put stores a decompressed object in the cache, evicting as needed.
func (o *ObjectCache) Put(hash string, typ cas.ObjectType, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if el, exists := o.items[hash]; exists {
		entry := el.Value.(*objectEntry)
		o.totalBytes -= int64(len(entry.data))
		entry.data = append([]byte(nil), data...)
		entry.typ = typ
		o.totalBytes += int64(len(entry.data))
		o.lru.MoveToFront(el)
		o.evictLocked()
		return
	}

	entry := &objectEntry{hash: hash, typ: typ, data: append([]byte(nil), data...)}
	el := o.lru.PushFront(entry)
	o.items[hash] = el
	o.totalBytes += int64(len(entry.data))
	o.evictLocked()
}

// Delete invalidates hash; NewCachedStore calls it from the store's
// OnDelete hook.
func (o *ObjectCache) Delete(hash string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if el, ok := o.items[hash]; ok {
		o.removeLocked(el)
	}
}

func (o *ObjectCache) evictLocked() {
	for (o.maxEntries > 0 && len(o.items) > o.maxEntries) || (o.maxBytes > 0 && o.totalBytes > o.maxBytes) {
		back := o.lru.Back()
		if back == nil {
			break
		}
		o.removeLocked(back)
		o.evictions++
	}
}

func (o *ObjectCache) removeLocked(el *list.Element) {
	entry := el.Value.(*objectEntry)
	o.totalBytes -= int64(len(entry.data))
	delete(o.items, entry.hash)
	o.lru.Remove(el)
}

// Stats reports current object cache counters.
func (o *ObjectCache) Stats() ObjectCacheStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	total := o.hits + o.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(o.hits) / float64(total)
	}
	return ObjectCacheStats{
		Hits:       o.hits,
		Misses:     o.misses,
		Evictions:  o.evictions,
		HitRatio:   ratio,
		EntryCount: len(o.items),
		MaxEntries: o.maxEntries,
		MaxBytes:   o.maxBytes,
	}
}

// CachedStore wraps a *cas.Store with an existence cache and an optional
// object cache, wiring cas.Options' OnPut/OnDelete hooks to keep the
// caches coherent with the underlying store.
type CachedStore struct {
	*cas.Store
	Existence *ExistenceCache
	Objects   *ObjectCache // nil when the object cache is disabled
}

// NewCachedStore builds a CAS store at base with an existence cache always
// enabled and an object cache enabled when objOpts is non-nil.
func NewCachedStore(storeOpts cas.Options, existOpts ExistenceCacheOptions, objOpts *ObjectCacheOptions) (*CachedStore, error) {
	existence := NewExistenceCache(existOpts)
	var objects *ObjectCache
	if objOpts != nil {
		objects = NewObjectCache(*objOpts)
	}

	storeOpts.OnPut = chainHook(storeOpts.OnPut, existence.RecordPut)
	storeOpts.OnDelete = chainHook(storeOpts.OnDelete, func(hash string) {
		existence.RecordDelete(hash)
		if objects != nil {
			objects.Delete(hash)
		}
	})

	store, err := cas.New(storeOpts)
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: store, Existence: existence, Objects: objects}, nil
}

func chainHook(existing func(string), add func(string)) func(string) {
	if existing == nil {
		return add
	}
	return func(hash string) {
		existing(hash)
		add(hash)
	}
}

// Has consults the existence cache before falling back to the store, and
// records the storage answer back into the cache on a cache miss.
func (c *CachedStore) Has(hash string) bool {
	if exists, known := c.Existence.Check(hash); known {
		return exists
	}
	exists := c.Store.Has(hash)
	c.Existence.Record(hash, exists)
	return exists
}

// Get consults the object cache first, falling back to the underlying
// store and populating the object cache on a miss.
func (c *CachedStore) Get(hash string) (cas.ObjectType, []byte, bool, error) {
	if c.Objects != nil {
		if typ, data, ok := c.Objects.Get(hash); ok {
			return typ, data, true, nil
		}
	}

	typ, data, ok, err := c.Store.Get(hash)
	if err != nil || !ok {
		return typ, data, ok, err
	}
	c.Existence.RecordPut(hash)
	if c.Objects != nil {
		c.Objects.Put(hash, typ, data)
	}
	return typ, data, ok, nil
}

// Delete decrements the store's refcount. When that removes the object,
// the store's OnDelete hook clears it from both the existence cache and
// the object cache; a decrement that leaves the object stored changes
// neither cache.
func (c *CachedStore) Delete(hash string) error {
	return c.Store.Delete(hash)
}

// ForceDelete removes the object from the store unconditionally; the
// store's OnDelete hook clears it from both caches.
func (c *CachedStore) ForceDelete(hash string) error {
	return c.Store.ForceDelete(hash)
}
