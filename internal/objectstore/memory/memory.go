// Package memory implements an in-memory objectstore.ObjectStoreClient,
// used by tests and as the tiered backend's default cold tier.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/posixfs/posixfs/internal/objectstore"
	"github.com/posixfs/posixfs/pkg/errno"
)

type entry struct {
	data         []byte
	lastModified time.Time
	etag         string
	metadata     map[string]string
}

// Store is a map-backed ObjectStoreClient.
type Store struct {
	mu      sync.RWMutex
	objects map[string]entry
}

// New creates an empty in-memory object store.
func New() *Store {
	return &Store{objects: make(map[string]entry)}
}

// Get implements objectstore.ObjectStoreClient.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[key]
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("get").WithPath(key)
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// GetRange implements objectstore.ObjectStoreClient.
func (s *Store) GetRange(_ context.Context, key string, offset, length int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[key]
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("getRange").WithPath(key)
	}
	if offset < 0 || offset > int64(len(e.data)) {
		return nil, errno.New(errno.EINVAL).WithSyscall("getRange").WithPath(key)
	}
	end := int64(len(e.data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	out := make([]byte, end-offset)
	copy(out, e.data[offset:end])
	return out, nil
}

// Put implements objectstore.ObjectStoreClient.
func (s *Store) Put(_ context.Context, key string, data []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	s.objects[key] = entry{data: buf, lastModified: time.Now(), etag: weakETag(buf), metadata: md}
	return nil
}

// Delete implements objectstore.ObjectStoreClient.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Head implements objectstore.ObjectStoreClient.
func (s *Store) Head(_ context.Context, key string) (objectstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, errno.New(errno.ENOENT).WithSyscall("head").WithPath(key)
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(e.data)), LastModified: e.lastModified, ETag: e.etag, Metadata: e.metadata}, nil
}

// Exists implements objectstore.ObjectStoreClient.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// List implements objectstore.ObjectStoreClient.
func (s *Store) List(_ context.Context, prefix string, limit int) ([]objectstore.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]objectstore.ObjectInfo, 0, len(keys))
	for _, k := range keys {
		e := s.objects[k]
		out = append(out, objectstore.ObjectInfo{Key: k, Size: int64(len(e.data)), LastModified: e.lastModified, ETag: e.etag, Metadata: e.metadata})
	}
	return out, nil
}

func weakETag(data []byte) string {
	var sum uint32
	for _, b := range data {
		sum = sum*31 + uint32(b)
	}
	return time.Now().Format("20060102150405") + "-" + itoa(sum)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
