package cas

import (
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Options{Base: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	hash, written, err := s.Put([]byte("hello"), TypeBlob)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !written {
		t.Fatalf("expected first put to be written")
	}
	if hash != "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0" {
		t.Fatalf("hash = %s, want the documented boundary-scenario-5 value", hash)
	}

	typ, data, ok, err := s.Get(hash)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if typ != TypeBlob || string(data) != "hello" {
		t.Fatalf("Get = (%s, %q)", typ, data)
	}
}

func TestEmptyBlobHash(t *testing.T) {
	if got := Hash(nil, TypeBlob); got != "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391" {
		t.Fatalf("empty blob hash = %s", got)
	}
}

func TestPutDedupesAndRefcounts(t *testing.T) {
	s := newTestStore(t)
	h1, w1, _ := s.Put([]byte("x"), TypeBlob)
	h2, w2, _ := s.Put([]byte("x"), TypeBlob)
	if h1 != h2 {
		t.Fatalf("expected identical hash for identical (bytes, type)")
	}
	if !w1 || w2 {
		t.Fatalf("expected written=true then written=false on dedup, got %v %v", w1, w2)
	}
	count, err := s.GetRefCount(h1)
	if err != nil || count != 2 {
		t.Fatalf("refcount = %d, err=%v, want 2", count, err)
	}
}

func TestSameBytesDifferentTypeDifferentHash(t *testing.T) {
	s := newTestStore(t)
	h1, _, _ := s.Put([]byte("same"), TypeBlob)
	h2, _, _ := s.Put([]byte("same"), TypeTree)
	if h1 == h2 {
		t.Fatalf("expected different hashes for different types of identical bytes")
	}
}

func TestDeleteDecrementsThenRemoves(t *testing.T) {
	s := newTestStore(t)
	h, _, _ := s.Put([]byte("y"), TypeBlob)
	_, _, _ = s.Put([]byte("y"), TypeBlob) // refcount=2

	if err := s.Delete(h); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !s.Has(h) {
		t.Fatalf("object should still exist after one decrement from refcount 2")
	}
	if err := s.Delete(h); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Has(h) {
		t.Fatalf("object should be physically removed once refcount hits 0")
	}
	// Never goes negative / no-op on missing.
	if err := s.Delete(h); err != nil {
		t.Fatalf("Delete on missing object should be a no-op, got %v", err)
	}
}

func TestForceDeleteIgnoresRefcount(t *testing.T) {
	s := newTestStore(t)
	h, _, _ := s.Put([]byte("z"), TypeBlob)
	_, _, _ = s.Put([]byte("z"), TypeBlob)
	if err := s.ForceDelete(h); err != nil {
		t.Fatalf("ForceDelete: %v", err)
	}
	if s.Has(h) {
		t.Fatalf("object should be gone after ForceDelete regardless of refcount")
	}
}

func TestInvalidHashRejected(t *testing.T) {
	s := newTestStore(t)
	if _, _, _, err := s.Get("not-a-hash"); err == nil {
		t.Fatalf("expected error for invalid hash")
	}
	if _, err := s.GetRefCount("short"); err == nil {
		t.Fatalf("expected error for invalid hash")
	}
}

func TestUnknownTypeIsInvalid(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Put([]byte("a"), ObjectType("bogus")); err == nil {
		t.Fatalf("expected EINVAL for unknown object type")
	}
}

func TestPutBatchPreservesIndexAndConserverRefcount(t *testing.T) {
	s := newTestStore(t)
	items := []BatchItem{
		{Data: []byte("a"), Type: TypeBlob},
		{Data: []byte("a"), Type: TypeBlob},
		{Data: []byte("b"), Type: TypeBlob},
	}
	results := s.PutBatch(items, BatchOptions{Concurrency: 1})
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("result[%d].Index = %d", i, r.Index)
		}
		if r.Err != nil {
			t.Fatalf("result[%d] error: %v", i, r.Err)
		}
	}
	if results[0].Hash != results[1].Hash {
		t.Fatalf("expected duplicate 'a' puts to share a hash")
	}
	if !results[0].Written || results[1].Written {
		t.Fatalf("expected sequential batch to mark only the first dup as written")
	}
	count, _ := s.GetRefCount(results[0].Hash)
	if count != 2 {
		t.Fatalf("refcount after batch = %d, want 2", count)
	}
}

func TestPutBatchConcurrentConservesRefcount(t *testing.T) {
	s := newTestStore(t)
	items := make([]BatchItem, 8)
	for i := range items {
		items[i] = BatchItem{Data: []byte("dup"), Type: TypeBlob}
	}
	results := s.PutBatch(items, BatchOptions{Concurrency: 4})
	hash := results[0].Hash
	for _, r := range results {
		if r.Hash != hash {
			t.Fatalf("expected every result to share the same hash")
		}
	}
	count, _ := s.GetRefCount(hash)
	if count != len(items) {
		t.Fatalf("refcount = %d, want %d", count, len(items))
	}
}
