// Package buffer recycles the scratch slices the page store burns through
// on partial writes: every UpdateRange materialises up to a full 2 MiB
// page before writing it back, and pooling those allocations keeps
// write-heavy workloads off the garbage collector.
package buffer

import "sync"

// Bucket capacities climb by powers of four from 4 KiB up to the 2 MiB
// page size, plus one oversize bucket for multi-page scratch work.
var bucketCaps = []int{4 << 10, 16 << 10, 64 << 10, 256 << 10, 1 << 20, 2 << 20, 8 << 20}

type bucket struct {
	cap  int
	pool sync.Pool
}

// Pool hands out zero-filled byte slices from capacity-bucketed free
// lists. Callers that depend on the zero fill (the page store overlays
// partial writes onto it) get it from both paths: fresh allocations are
// zeroed by the runtime, recycled ones by Put.
type Pool struct {
	buckets []*bucket
}

// NewPool builds a Pool over the standard bucket ladder.
func NewPool() *Pool {
	p := &Pool{}
	for _, c := range bucketCaps {
		c := c
		b := &bucket{cap: c}
		b.pool.New = func() any {
			s := make([]byte, c)
			return &s
		}
		p.buckets = append(p.buckets, b)
	}
	return p
}

// Get returns a zero-filled slice of exactly n bytes, backed by the
// smallest bucket that fits. Requests beyond the largest bucket allocate
// directly and are never recycled.
func (p *Pool) Get(n int) []byte {
	for _, b := range p.buckets {
		if b.cap >= n {
			s := b.pool.Get().(*[]byte)
			return (*s)[:n]
		}
	}
	return make([]byte, n)
}

// Put zeroes buf and returns it to its bucket. Slices whose capacity
// matches no bucket (direct allocations, or foreign slices) are left to
// the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	for _, b := range p.buckets {
		if b.cap == c {
			s := buf[:c]
			for i := range s {
				s[i] = 0
			}
			b.pool.Put(&s)
			return
		}
	}
}

var shared = NewPool()

// GetBuffer takes an n-byte zero-filled slice from the package-shared pool.
func GetBuffer(n int) []byte { return shared.Get(n) }

// PutBuffer recycles buf into the package-shared pool.
func PutBuffer(buf []byte) { shared.Put(buf) }
