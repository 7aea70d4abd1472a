// Package objectstore defines the cold/warm tier object-store
// abstraction used by internal/tier to move page payloads between tiers,
// with a memory implementation for tests and an S3 implementation for
// real deployments.
package objectstore

import (
	"context"
	"time"
)

// ObjectInfo describes a stored object's metadata, returned by Head and
// List.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	Metadata     map[string]string
}

// ObjectStoreClient is the minimal object-store surface the tier manager
// needs: whole-object and ranged reads, whole-object writes, existence and
// metadata checks, and deletion. Implementations must be safe for
// concurrent use.
type ObjectStoreClient interface {
	// Get retrieves the full object stored at key.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetRange retrieves length bytes of the object at key starting at
	// offset. A length of 0 means "to the end of the object".
	GetRange(ctx context.Context, key string, offset, length int64) ([]byte, error)
	// Put stores data at key, overwriting any existing object. metadata is
	// attached as the object's custom metadata (e.g. the tier manager's
	// {pageId, blobId, pageIndex} triple); nil is equivalent
	// to an empty map.
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) error
	// Delete removes the object at key; deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
	// Head returns metadata for key without fetching its body.
	Head(ctx context.Context, key string) (ObjectInfo, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns objects whose key starts with prefix, up to limit
	// entries (0 == unbounded).
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
}
