// Package page implements tiered page packing over blobs: a blob of
// length L is split into fixed-size pages, writes replace the full page
// set, and ReadRange/UpdateRange touch only the pages a request spans. A
// cached total-size map avoids recomputing size from chunk counts. Page
// storage itself is delegated to an Accessor — internal/tier's Manager in
// production, a plain map in tests.
package page

import (
	"context"
	"fmt"
	"sync"

	"github.com/posixfs/posixfs/internal/buffer"
	"github.com/posixfs/posixfs/pkg/errno"
)

// Size is the fixed page size: 2 MiB.
const Size int64 = 2 * 1024 * 1024

// RangeError is raised when a read range falls outside the blob's current
// bounds.
type RangeError struct {
	BlobID string
	Offset int64
	Length int64
	Size   int64
}

func (e *RangeError) Error() string { return "range out of bounds" }

// Accessor is the page-granular storage primitive a Store writes through.
// internal/tier.Manager implements this to interpose hot/warm/cold
// promotion; a direct in-memory map suffices for tests.
type Accessor interface {
	AccessPage(ctx context.Context, pageID string) ([]byte, error) // ENOENT if absent
	WritePage(ctx context.Context, pageID string, data []byte) error
	DeletePage(ctx context.Context, pageID string) error
}

// Key returns the page storage key for blobID's pageIndex'th page:
// "__page__<blobId>:<chunkIndex>".
func Key(blobID string, pageIndex int) string {
	return fmt.Sprintf("__page__%s:%d", blobID, pageIndex)
}

// MetaKey returns the metadata key for a page id: "__page_meta__<pageId>".
func MetaKey(pageID string) string {
	return "__page_meta__" + pageID
}

// Count returns the number of pages an L-byte blob packs into:
// ⌈L/Size⌉, 0 for an empty blob.
func Count(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + Size - 1) / Size)
}

// pageBounds returns the byte range [start,end) of pageIndex within a blob
// of the given total size.
func pageBounds(pageIndex int, size int64) (start, end int64) {
	start = int64(pageIndex) * Size
	end = start + Size
	if end > size {
		end = size
	}
	return start, end
}

// Store packs/unpacks blobs into fixed pages over an Accessor, caching
// each blob's total size.
type Store struct {
	accessor Accessor

	mu    sync.RWMutex
	sizes map[string]int64
}

// NewStore builds a Store delegating page I/O to accessor.
func NewStore(accessor Accessor) *Store {
	return &Store{accessor: accessor, sizes: make(map[string]int64)}
}

func (s *Store) getSize(blobID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	size, ok := s.sizes[blobID]
	return size, ok
}

func (s *Store) setSize(blobID string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizes[blobID] = size
}

func (s *Store) forgetSize(blobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sizes, blobID)
}

// Size returns blobID's cached total size and whether it is known.
func (s *Store) Size(blobID string) (int64, bool) {
	return s.getSize(blobID)
}

// WriteAll replaces blobID's full contents, repacking into pages and
// deleting any pages beyond the new page count. An empty write leaves zero pages and
// a cached size of 0 (invariant P3).
func (s *Store) WriteAll(ctx context.Context, blobID string, data []byte) error {
	oldSize, hadOld := s.getSize(blobID)
	oldPages := 0
	if hadOld {
		oldPages = Count(oldSize)
	}

	newPages := Count(int64(len(data)))
	for i := 0; i < newPages; i++ {
		start, end := pageBounds(i, int64(len(data)))
		if err := s.accessor.WritePage(ctx, Key(blobID, i), data[start:end]); err != nil {
			return err
		}
	}
	for i := newPages; i < oldPages; i++ {
		if err := s.accessor.DeletePage(ctx, Key(blobID, i)); err != nil {
			return err
		}
	}

	s.setSize(blobID, int64(len(data)))
	return nil
}

// Delete removes every page of blobID and forgets its cached size.
func (s *Store) Delete(ctx context.Context, blobID string) error {
	size, ok := s.getSize(blobID)
	if !ok {
		return nil
	}
	for i := 0; i < Count(size); i++ {
		if err := s.accessor.DeletePage(ctx, Key(blobID, i)); err != nil {
			return err
		}
	}
	s.forgetSize(blobID)
	return nil
}

// ReadAll reads the full current contents of blobID, populating the size
// cache if it was not already known.
func (s *Store) ReadAll(ctx context.Context, blobID string) ([]byte, error) {
	size, ok := s.getSize(blobID)
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("read").WithPath(blobID)
	}
	return s.ReadRange(ctx, blobID, 0, size)
}

// ReadRange loads only the pages spanning [offset, offset+length) and
// returns the requested slice.
func (s *Store) ReadRange(ctx context.Context, blobID string, offset, length int64) ([]byte, error) {
	size, ok := s.getSize(blobID)
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("read").WithPath(blobID)
	}
	if offset < 0 || length < 0 || offset+length > size {
		return nil, &RangeError{BlobID: blobID, Offset: offset, Length: length, Size: size}
	}
	if length == 0 {
		return []byte{}, nil
	}

	out := make([]byte, 0, length)
	startPage := int(offset / Size)
	endPage := int((offset + length - 1) / Size)

	for i := startPage; i <= endPage; i++ {
		data, err := s.accessor.AccessPage(ctx, Key(blobID, i))
		if err != nil {
			return nil, err
		}
		pageStart, _ := pageBounds(i, size)

		sliceStart := int64(0)
		if offset > pageStart {
			sliceStart = offset - pageStart
		}
		sliceEnd := int64(len(data))
		pageEndAbs := pageStart + int64(len(data))
		if offset+length < pageEndAbs {
			sliceEnd = offset + length - pageStart
		}
		out = append(out, data[sliceStart:sliceEnd]...)
	}
	return out, nil
}

// UpdateRange mutates [offset, offset+len(bytes)) in place: it reads each
// affected page (zero-filling pages past the current end when the write
// extends the blob), overlays the new bytes, and writes the modified
// pages back.
func (s *Store) UpdateRange(ctx context.Context, blobID string, offset int64, data []byte) error {
	if offset < 0 {
		return errno.New(errno.EINVAL).WithSyscall("write").WithPath(blobID)
	}
	if len(data) == 0 {
		return nil
	}

	size, _ := s.getSize(blobID)
	newSize := size
	if end := offset + int64(len(data)); end > newSize {
		newSize = end
	}

	startPage := int(offset / Size)
	endPage := int((offset + int64(len(data)) - 1) / Size)
	if size < offset {
		// A write past the current end leaves a zero-filled gap; the gap
		// pages have to be materialised too or later reads ENOENT on them.
		if gapPage := int(size / Size); gapPage < startPage {
			startPage = gapPage
		}
	}

	for i := startPage; i <= endPage; i++ {
		pageStart, pageEnd := pageBounds(i, newSize)
		pageLen := pageEnd - pageStart

		// The scratch buffer never outlives this iteration: WritePage
		// (internal/tier's Manager) copies it into the hot tier before
		// returning, so it's safe to recycle through the pool afterward.
		buf := buffer.GetBuffer(int(pageLen))
		if existing, err := s.accessor.AccessPage(ctx, Key(blobID, i)); err == nil {
			copy(buf, existing)
		} else if !errno.Is(err, errno.ENOENT) {
			buffer.PutBuffer(buf)
			return err
		}

		overlapStart := offset
		if pageStart > overlapStart {
			overlapStart = pageStart
		}
		overlapEnd := offset + int64(len(data))
		if pageEnd < overlapEnd {
			overlapEnd = pageEnd
		}
		if overlapEnd > overlapStart {
			copy(buf[overlapStart-pageStart:overlapEnd-pageStart], data[overlapStart-offset:overlapEnd-offset])
		}

		err := s.accessor.WritePage(ctx, Key(blobID, i), buf)
		buffer.PutBuffer(buf)
		if err != nil {
			return err
		}
	}

	s.setSize(blobID, newSize)
	return nil
}
