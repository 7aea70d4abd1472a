package cascache

import (
	"testing"
	"time"

	"github.com/posixfs/posixfs/internal/cas"
)

func TestExistenceCacheBloomRejection(t *testing.T) {
	c := NewExistenceCache(ExistenceCacheOptions{})
	exists, known := c.Check("0123456789abcdef0123456789abcdef01234567")
	if exists {
		t.Fatalf("expected exists=false for an unrecorded hash")
	}
	if !known {
		t.Fatalf("expected a fresh bloom filter to definitively reject an unseen hash")
	}
}

func TestExistenceCacheRecordPutThenCheck(t *testing.T) {
	c := NewExistenceCache(ExistenceCacheOptions{})
	hash := "abcdef0123456789abcdef0123456789abcdef01"
	c.RecordPut(hash)

	exists, known := c.Check(hash)
	if !known || !exists {
		t.Fatalf("expected confirmed positive after RecordPut, got exists=%v known=%v", exists, known)
	}
}

func TestExistenceCachePositiveExpiresAfterTTL(t *testing.T) {
	c := NewExistenceCache(ExistenceCacheOptions{PositiveTTL: time.Millisecond})
	hash := "abcdef0123456789abcdef0123456789abcdef02"
	c.RecordPut(hash)
	time.Sleep(5 * time.Millisecond)

	exists, known := c.Check(hash)
	if exists {
		t.Fatalf("expected expired positive entry to no longer report exists=true")
	}
	// The bloom filter still remembers the hash, so the answer is
	// inconclusive rather than a rejection.
	if known {
		t.Fatalf("expected an expired-but-bloom-positive hash to be 'must consult storage'")
	}
}

func TestExistenceCacheRecordDelete(t *testing.T) {
	c := NewExistenceCache(ExistenceCacheOptions{})
	hash := "abcdef0123456789abcdef0123456789abcdef03"
	c.RecordPut(hash)
	c.RecordDelete(hash)

	exists, known := c.Check(hash)
	if exists {
		t.Fatalf("expected RecordDelete to clear the positive cache entry")
	}
	// Bloom filter membership is permanent; this is still "inconclusive".
	if known {
		t.Fatalf("expected the bloom filter's stale membership to force a storage check")
	}
}

func TestExistenceCachePositiveEviction(t *testing.T) {
	c := NewExistenceCache(ExistenceCacheOptions{MaxPositiveEntries: 2})
	c.RecordPut("aaaa")
	c.RecordPut("bbbb")
	c.RecordPut("cccc") // evicts "aaaa" from the positive cache

	if _, ok := c.positive["aaaa"]; ok {
		t.Fatalf("expected least-recently-confirmed entry to be evicted")
	}
	if _, ok := c.positive["cccc"]; !ok {
		t.Fatalf("expected most recent entry to remain")
	}
}

func TestObjectCachePutGetDelete(t *testing.T) {
	o := NewObjectCache(ObjectCacheOptions{MaxEntries: 10, MaxBytes: 1 << 20})
	o.Put("h1", cas.TypeBlob, []byte("payload"))

	typ, data, ok := o.Get("h1")
	if !ok || typ != cas.TypeBlob || string(data) != "payload" {
		t.Fatalf("Get = (%v,%q,%v)", typ, data, ok)
	}

	o.Delete("h1")
	if _, _, ok := o.Get("h1"); ok {
		t.Fatalf("expected Delete to invalidate the entry")
	}
}

func TestObjectCacheEvictsOnMaxEntries(t *testing.T) {
	o := NewObjectCache(ObjectCacheOptions{MaxEntries: 1})
	o.Put("h1", cas.TypeBlob, []byte("a"))
	o.Put("h2", cas.TypeBlob, []byte("b"))

	if _, _, ok := o.Get("h1"); ok {
		t.Fatalf("expected h1 to have been evicted once capacity was exceeded")
	}
	if _, _, ok := o.Get("h2"); !ok {
		t.Fatalf("expected h2 to remain cached")
	}
	stats := o.Stats()
	if stats.Evictions != 1 {
		t.Fatalf("Evictions = %d, want 1", stats.Evictions)
	}
}

func TestCachedStoreWiresHooks(t *testing.T) {
	store, err := NewCachedStore(cas.Options{Base: t.TempDir()}, ExistenceCacheOptions{}, &ObjectCacheOptions{MaxEntries: 10, MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("NewCachedStore: %v", err)
	}

	hash, _, err := store.Put([]byte("hello"), cas.TypeBlob)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if !store.Has(hash) {
		t.Fatalf("expected Has to report true immediately after Put")
	}
	if exists, known := store.Existence.Check(hash); !known || !exists {
		t.Fatalf("expected the existence cache to learn about the put via the OnPut hook")
	}

	typ, data, ok, err := store.Get(hash)
	if err != nil || !ok || typ != cas.TypeBlob || string(data) != "hello" {
		t.Fatalf("Get = (%v,%q,%v,%v)", typ, data, ok, err)
	}
	if _, _, ok := store.Objects.Get(hash); !ok {
		t.Fatalf("expected Get to populate the object cache")
	}

	if err := store.Delete(hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, ok := store.Objects.Get(hash); ok {
		t.Fatalf("expected Delete's OnDelete hook to invalidate the object cache")
	}
	if exists, known := store.Existence.Check(hash); known && exists {
		t.Fatalf("expected the existence cache to no longer report a confirmed positive")
	}
}
