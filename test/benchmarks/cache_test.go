//go:build benchmark

// Package benchmarks exercises the CAS object cache and the compiled
// pattern cache under representative access patterns: sequential
// get/put, mixed read/write/delete, varying payload sizes, varying
// parallelism, and steady-state eviction.
package benchmarks

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/posixfs/posixfs/internal/cas"
	"github.com/posixfs/posixfs/internal/cascache"
	"github.com/posixfs/posixfs/internal/pattern"
)

func hashFor(key string) string {
	return cas.Hash([]byte(key), cas.TypeBlob)
}

func newBenchCache(maxEntries int, maxBytes int64) *cascache.ObjectCache {
	return cascache.NewObjectCache(cascache.ObjectCacheOptions{
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
	})
}

// BenchmarkObjectCacheGet benchmarks cache get operations.
func BenchmarkObjectCacheGet(b *testing.B) {
	cache := newBenchCache(10000, 64<<20)

	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		data := make([]byte, 1024)
		rand.Read(data)
		cache.Put(hashFor(key), cas.TypeBlob, data)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			hash := hashFor(fmt.Sprintf("key-%d", i%1000))
			_, _, _ = cache.Get(hash)
			i++
		}
	})
}

// BenchmarkObjectCachePut benchmarks cache put operations.
func BenchmarkObjectCachePut(b *testing.B) {
	cache := newBenchCache(100000, 1<<30)
	data := make([]byte, 1024)
	rand.Read(data)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			hash := hashFor(fmt.Sprintf("key-%d", i))
			cache.Put(hash, cas.TypeBlob, data)
			i++
		}
	})
}

// BenchmarkObjectCacheGetMiss benchmarks lookups that never hit.
func BenchmarkObjectCacheGetMiss(b *testing.B) {
	cache := newBenchCache(1000, 16<<20)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			hash := hashFor(fmt.Sprintf("nonexistent-key-%d", i))
			_, _, _ = cache.Get(hash)
			i++
		}
	})
}

// BenchmarkObjectCacheMixed benchmarks a 70/25/5 read/write/delete mix.
func BenchmarkObjectCacheMixed(b *testing.B) {
	cache := newBenchCache(1000, 16<<20)
	data := make([]byte, 1024)
	rand.Read(data)

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			hash := hashFor(fmt.Sprintf("key-%d", i%100))

			switch i % 20 {
			case 0: // 5% deletes
				cache.Delete(hash)
			case 1, 2, 3, 4, 5: // 25% writes
				cache.Put(hash, cas.TypeBlob, data)
			default: // 70% reads
				_, _, _ = cache.Get(hash)
			}
			i++
		}
	})
}

// BenchmarkObjectCacheVariousDataSizes benchmarks cache operations across
// payload sizes.
func BenchmarkObjectCacheVariousDataSizes(b *testing.B) {
	sizes := []int{64, 256, 1024, 4096, 16384, 65536}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size-%dB", size), func(b *testing.B) {
			cache := newBenchCache(1000, int64(size)*2000)
			data := make([]byte, size)
			rand.Read(data)

			b.ResetTimer()
			b.ReportAllocs()

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					hash := hashFor(fmt.Sprintf("key-%d", i%100))
					if i%2 == 0 {
						cache.Put(hash, cas.TypeBlob, data)
					} else {
						_, _, _ = cache.Get(hash)
					}
					i++
				}
			})
		})
	}
}

// BenchmarkObjectCacheConcurrency benchmarks the cache under varying
// parallelism levels.
func BenchmarkObjectCacheConcurrency(b *testing.B) {
	concurrency := []int{1, 2, 4, 8, 16, 32}

	for _, p := range concurrency {
		b.Run(fmt.Sprintf("procs-%d", p), func(b *testing.B) {
			cache := newBenchCache(1000, 16<<20)
			data := make([]byte, 1024)
			rand.Read(data)

			for i := 0; i < 100; i++ {
				hash := hashFor(fmt.Sprintf("key-%d", i))
				cache.Put(hash, cas.TypeBlob, data)
			}

			b.SetParallelism(p)
			b.ResetTimer()
			b.ReportAllocs()

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					hash := hashFor(fmt.Sprintf("key-%d", i%100))
					_, _, _ = cache.Get(hash)
					i++
				}
			})
		})
	}
}

// BenchmarkObjectCacheEviction benchmarks steady-state eviction once the
// cache is held well over its entry cap.
func BenchmarkObjectCacheEviction(b *testing.B) {
	cache := newBenchCache(5000, 32<<20)
	data := make([]byte, 1024)
	rand.Read(data)

	for i := 0; i < 10000; i++ {
		hash := hashFor(fmt.Sprintf("key-%d", i))
		cache.Put(hash, cas.TypeBlob, data)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		hash := hashFor(fmt.Sprintf("new-key-%d", i))
		cache.Put(hash, cas.TypeBlob, data)
	}
}

// BenchmarkPatternCacheCompile benchmarks the glob pattern LRU cache
// (internal/pattern) under repeated compilation of a small pattern set.
func BenchmarkPatternCacheCompile(b *testing.B) {
	patterns := []string{
		"src/**/*.go",
		"*.txt",
		"**/node_modules/**",
		"docs/*.md",
		"{a,b,c}/**/*.json",
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = pattern.Global().Get(patterns[i%len(patterns)], pattern.Options{})
			i++
		}
	})
}
