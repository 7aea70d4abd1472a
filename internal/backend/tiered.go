package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/posixfs/posixfs/internal/cas"
	"github.com/posixfs/posixfs/internal/cascache"
	"github.com/posixfs/posixfs/internal/objectstore"
	objmem "github.com/posixfs/posixfs/internal/objectstore/memory"
	"github.com/posixfs/posixfs/internal/page"
	"github.com/posixfs/posixfs/internal/tier"
	"github.com/posixfs/posixfs/pkg/errno"
	"github.com/posixfs/posixfs/pkg/posix"
	"github.com/posixfs/posixfs/pkg/vpath"
)

// casPrefix marks a node's blobID as a CAS hash rather than a page-store
// blob id.
const casPrefix = "cas:"

// TieredOptions configures a TieredBackend.
type TieredOptions struct {
	// Cold is the object store the tier manager demotes pages to. A
	// process-local in-memory store is used when nil.
	Cold objectstore.ObjectStoreClient
	Tier tier.Options

	// CASBase is the on-disk directory CAS objects are written under.
	// Required.
	CASBase      string
	CASPrefixLen int
	CASExistence cascache.ExistenceCacheOptions
	CASObjects   *cascache.ObjectCacheOptions
}

// TieredBackend layers the tiered page store, the hot/warm/cold tier
// manager and the content-addressable store on top of
// Memory's namespace tree: Memory owns directories, symlinks and node
// metadata; file content is addressed by a blobID stored on the node
// instead of inline bytes, routed either through the page store (the
// default) or through CAS when a write requests WriteOptions{Tier: "cas"}.
// The namespace metadata lives in one place, the content in another,
// joined only by the blobID.
type TieredBackend struct {
	*Memory
	pages *page.Store
	tiers *tier.Manager
	cas   *cascache.CachedStore
}

// NewTiered builds a TieredBackend per opts.
func NewTiered(opts TieredOptions) (*TieredBackend, error) {
	cold := opts.Cold
	if cold == nil {
		cold = objmem.New()
	}
	tm := tier.NewManager(cold, opts.Tier)
	pages := page.NewStore(tm)

	casStore, err := cascache.NewCachedStore(
		cas.Options{Base: opts.CASBase, PrefixLen: opts.CASPrefixLen},
		opts.CASExistence,
		opts.CASObjects,
	)
	if err != nil {
		return nil, err
	}

	return &TieredBackend{Memory: NewMemory(), pages: pages, tiers: tm, cas: casStore}, nil
}

// Tiers exposes the underlying tier manager, e.g. for metrics reporting.
func (t *TieredBackend) Tiers() *tier.Manager { return t.tiers }

// CAS exposes the underlying CAS store, e.g. for metrics reporting.
func (t *TieredBackend) CAS() *cascache.CachedStore { return t.cas }

func (t *TieredBackend) Capabilities() Capabilities { return Capabilities{Tiering: true} }

func newBlobID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func isCASBlob(blobID string) bool { return strings.HasPrefix(blobID, casPrefix) }

func (t *TieredBackend) readBlob(ctx context.Context, blobID string, offset, length int64) ([]byte, error) {
	if hash, ok := strings.CutPrefix(blobID, casPrefix); ok {
		_, data, found, err := t.cas.Get(hash)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errno.New(errno.ENOENT).WithSyscall("read")
		}
		if offset >= int64(len(data)) {
			return []byte{}, nil
		}
		end := offset + length
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		return data[offset:end], nil
	}
	return t.pages.ReadRange(ctx, blobID, offset, length)
}

func (t *TieredBackend) deleteBlob(ctx context.Context, blobID string) error {
	if blobID == "" {
		return nil
	}
	if hash, ok := strings.CutPrefix(blobID, casPrefix); ok {
		return t.cas.Delete(hash)
	}
	return t.pages.Delete(ctx, blobID)
}

func (t *TieredBackend) GetTier(ctx context.Context, path string) (string, error) {
	t.Memory.mu.RLock()
	resolved, err := t.Memory.resolve(path, true)
	if err != nil {
		t.Memory.mu.RUnlock()
		return "", err
	}
	n, ok := t.Memory.nodes[resolved]
	if !ok {
		t.Memory.mu.RUnlock()
		return "", errno.New(errno.ENOENT).WithSyscall("getTier").WithPath(path)
	}
	blobID := n.blobID
	t.Memory.mu.RUnlock()

	if blobID == "" {
		return "warm", nil
	}
	if isCASBlob(blobID) {
		return "cas", nil
	}
	size, ok := t.pages.Size(blobID)
	if !ok || page.Count(size) == 0 {
		return "warm", nil
	}
	meta, ok := t.tiers.GetPageMeta(page.Key(blobID, 0))
	if !ok {
		return "warm", nil
	}
	return string(meta.Tier), nil
}

func (t *TieredBackend) Promote(ctx context.Context, path string) error {
	t.Memory.mu.RLock()
	resolved, err := t.Memory.resolve(path, true)
	if err != nil {
		t.Memory.mu.RUnlock()
		return err
	}
	n, ok := t.Memory.nodes[resolved]
	if !ok {
		t.Memory.mu.RUnlock()
		return errno.New(errno.ENOENT).WithSyscall("promote").WithPath(path)
	}
	blobID := n.blobID
	t.Memory.mu.RUnlock()

	if blobID == "" || isCASBlob(blobID) {
		return nil
	}
	size, ok := t.pages.Size(blobID)
	if !ok {
		return nil
	}
	for i := 0; i < page.Count(size); i++ {
		if _, err := t.tiers.PromotePage(ctx, page.Key(blobID, i)); err != nil {
			return err
		}
	}
	return nil
}

// Demote is a no-op hint: demotion happens through the tier manager's own
// LRU eviction during promotion of other pages.
func (t *TieredBackend) Demote(ctx context.Context, path string) error { return nil }

func (t *TieredBackend) ReadFile(ctx context.Context, path string) ([]byte, error) {
	t.Memory.mu.RLock()
	resolved, err := t.Memory.resolve(path, true)
	if err != nil {
		t.Memory.mu.RUnlock()
		return nil, err
	}
	n, ok := t.Memory.nodes[resolved]
	if !ok {
		t.Memory.mu.RUnlock()
		return nil, errno.New(errno.ENOENT).WithSyscall("open").WithPath(path)
	}
	if n.stats.IsDir() {
		t.Memory.mu.RUnlock()
		return nil, errno.New(errno.EISDIR).WithSyscall("read").WithPath(path)
	}
	blobID, size := n.blobID, n.stats.Size
	t.Memory.mu.RUnlock()

	if blobID == "" {
		return []byte{}, nil
	}
	return t.readBlob(ctx, blobID, 0, size)
}

func (t *TieredBackend) WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (int, string, error) {
	if opts.Flag == "a" {
		if err := t.AppendFile(ctx, path, data); err != nil {
			return 0, "", err
		}
		tierLabel, err := t.GetTier(ctx, path)
		if err != nil {
			return 0, "", err
		}
		return len(data), tierLabel, nil
	}

	t.Memory.mu.Lock()
	defer t.Memory.mu.Unlock()

	resolved, err := t.Memory.resolve(path, true)
	if err != nil {
		return 0, "", err
	}
	parent, _, err := t.Memory.parentDir(resolved)
	if err != nil {
		return 0, "", err
	}

	existing, exists := t.Memory.nodes[resolved]
	if exists {
		if opts.Flag == "wx" {
			return 0, "", errno.New(errno.EEXIST).WithSyscall("open").WithPath(path)
		}
		if existing.stats.IsDir() {
			return 0, "", errno.New(errno.EISDIR).WithSyscall("write").WithPath(path)
		}
	}

	now := time.Now()
	mode := opts.Mode
	if mode == 0 {
		mode = 0o644
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	var blobID, tierLabel string
	if opts.Tier == "cas" {
		hash, _, err := t.cas.Put(buf, cas.TypeBlob)
		if err != nil {
			return 0, "", err
		}
		blobID = casPrefix + hash
		tierLabel = "cas"
	} else {
		if exists && existing.blobID != "" && !isCASBlob(existing.blobID) {
			blobID = existing.blobID
		} else {
			blobID = newBlobID()
		}
		if err := t.pages.WriteAll(ctx, blobID, buf); err != nil {
			return 0, "", err
		}
		tierLabel = opts.Tier
		if tierLabel == "" {
			tierLabel = "warm"
		}
	}

	if exists {
		if existing.blobID != "" && existing.blobID != blobID {
			_ = t.deleteBlob(ctx, existing.blobID)
		}
		existing.blobID = blobID
		existing.stats.Size = int64(len(buf))
		existing.stats.Mtime = now
		existing.stats.Ctime = now
	} else {
		t.Memory.nodes[resolved] = &node{
			stats: Stats{
				Kind: KindFile, Mode: mode, Size: int64(len(buf)),
				Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1,
			},
			blobID: blobID,
		}
		parent.children[vpath.Base(resolved)] = true
	}
	return len(buf), tierLabel, nil
}

func (t *TieredBackend) AppendFile(ctx context.Context, path string, data []byte) error {
	t.Memory.mu.Lock()
	defer t.Memory.mu.Unlock()

	resolved, err := t.Memory.resolve(path, true)
	if err != nil {
		return err
	}
	parent, _, err := t.Memory.parentDir(resolved)
	if err != nil {
		return err
	}

	now := time.Now()
	n, exists := t.Memory.nodes[resolved]
	if !exists {
		blobID := newBlobID()
		if err := t.pages.WriteAll(ctx, blobID, data); err != nil {
			return err
		}
		t.Memory.nodes[resolved] = &node{
			stats: Stats{
				Kind: KindFile, Mode: 0o644, Size: int64(len(data)),
				Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1,
			},
			blobID: blobID,
		}
		parent.children[vpath.Base(resolved)] = true
		return nil
	}
	if n.stats.IsDir() {
		return errno.New(errno.EISDIR).WithSyscall("write").WithPath(path)
	}

	if isCASBlob(n.blobID) {
		hash := strings.TrimPrefix(n.blobID, casPrefix)
		_, existingData, _, err := t.cas.Get(hash)
		if err != nil {
			return err
		}
		merged := append(append([]byte{}, existingData...), data...)
		newHash, _, err := t.cas.Put(merged, cas.TypeBlob)
		if err != nil {
			return err
		}
		_ = t.cas.Delete(hash)
		n.blobID = casPrefix + newHash
		n.stats.Size = int64(len(merged))
	} else {
		if n.blobID == "" {
			n.blobID = newBlobID()
		}
		if err := t.pages.UpdateRange(ctx, n.blobID, n.stats.Size, data); err != nil {
			return err
		}
		n.stats.Size += int64(len(data))
	}
	n.stats.Mtime = now
	n.stats.Ctime = now
	return nil
}

func (t *TieredBackend) Unlink(ctx context.Context, path string) error {
	t.Memory.mu.Lock()
	resolved, err := t.Memory.resolve(path, false)
	if err != nil {
		t.Memory.mu.Unlock()
		return err
	}
	n, ok := t.Memory.nodes[resolved]
	if !ok {
		t.Memory.mu.Unlock()
		return errno.New(errno.ENOENT).WithSyscall("unlink").WithPath(path)
	}
	if n.stats.IsDir() {
		t.Memory.mu.Unlock()
		return errno.New(errno.EISDIR).WithSyscall("unlink").WithPath(path)
	}
	if parent, _, perr := t.Memory.parentDir(resolved); perr == nil {
		delete(parent.children, vpath.Base(resolved))
	}
	delete(t.Memory.nodes, resolved)
	n.stats.Nlink--
	blobID := n.blobID
	lastLink := n.stats.Nlink <= 0
	t.Memory.mu.Unlock()

	if lastLink {
		return t.deleteBlob(ctx, blobID)
	}
	return nil
}

// Rename delegates to Memory's namespace move, then frees the blob of a
// replaced destination file once its last namespace reference is gone.
func (t *TieredBackend) Rename(ctx context.Context, oldPath, newPath string) error {
	t.Memory.mu.RLock()
	var destBlob string
	if resolved, err := t.Memory.resolve(newPath, false); err == nil {
		if dest, ok := t.Memory.nodes[resolved]; ok && !dest.stats.IsDir() && dest.stats.Nlink <= 1 {
			destBlob = dest.blobID
		}
	}
	t.Memory.mu.RUnlock()

	if err := t.Memory.Rename(ctx, oldPath, newPath); err != nil {
		return err
	}
	if destBlob != "" {
		return t.deleteBlob(ctx, destBlob)
	}
	return nil
}

// Rmdir delegates to Memory, collecting the blobs of files inside a
// recursively removed subtree first so their pages/objects are freed too.
func (t *TieredBackend) Rmdir(ctx context.Context, path string, opts RmdirOptions) error {
	var blobs []string
	if opts.Recursive {
		t.Memory.mu.RLock()
		if resolved, err := t.Memory.resolve(path, true); err == nil {
			for p, n := range t.Memory.nodes {
				if p != resolved && vpath.IsAncestor(resolved, p) && n.blobID != "" && n.stats.Nlink <= 1 {
					blobs = append(blobs, n.blobID)
				}
			}
		}
		t.Memory.mu.RUnlock()
	}

	if err := t.Memory.Rmdir(ctx, path, opts); err != nil {
		return err
	}
	for _, blobID := range blobs {
		if err := t.deleteBlob(ctx, blobID); err != nil {
			return err
		}
	}
	return nil
}

func (t *TieredBackend) CopyFile(ctx context.Context, src, dest string, flags CopyFlags) error {
	data, err := t.ReadFile(ctx, src)
	if err != nil {
		return err
	}

	t.Memory.mu.RLock()
	srcResolved, err := t.Memory.resolve(src, true)
	if err != nil {
		t.Memory.mu.RUnlock()
		return err
	}
	srcNode, ok := t.Memory.nodes[srcResolved]
	if !ok {
		t.Memory.mu.RUnlock()
		return errno.New(errno.ENOENT).WithSyscall("copyFile").WithPath(src)
	}
	if srcNode.stats.IsDir() {
		t.Memory.mu.RUnlock()
		return errno.New(errno.EISDIR).WithSyscall("copyFile").WithPath(src)
	}
	mode := srcNode.stats.Mode
	t.Memory.mu.RUnlock()

	flag := "w"
	if flags.Excl {
		flag = "wx"
	}
	_, _, err = t.WriteFile(ctx, dest, data, WriteOptions{Mode: mode, Flag: flag})
	return err
}

func (t *TieredBackend) Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (FileHandle, error) {
	if flags.Directory {
		return nil, errno.New(errno.EINVAL).WithSyscall("open").WithPath(path)
	}

	t.Memory.mu.RLock()
	resolved, err := t.Memory.resolve(path, !flags.NoFollow)
	t.Memory.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	t.Memory.mu.RLock()
	_, exists := t.Memory.nodes[resolved]
	t.Memory.mu.RUnlock()

	if !exists {
		if !flags.Create {
			return nil, errno.New(errno.ENOENT).WithSyscall("open").WithPath(path)
		}
		if _, _, err := t.WriteFile(ctx, path, nil, WriteOptions{Mode: mode}); err != nil {
			return nil, err
		}
	} else if flags.Create && flags.Excl {
		return nil, errno.New(errno.EEXIST).WithSyscall("open").WithPath(path)
	} else if flags.Truncate && flags.Write {
		if _, _, err := t.WriteFile(ctx, path, nil, WriteOptions{Mode: mode}); err != nil {
			return nil, err
		}
	}

	return &tieredHandle{be: t, path: resolved, flags: flags}, nil
}

// tieredHandle is TieredBackend's FileHandle: it resolves its node fresh on
// every operation, like Memory's memHandle, but reads/writes content
// through the page store (or CAS, for an immutable handle) instead of an
// inline byte slice.
type tieredHandle struct {
	be     *TieredBackend
	path   string
	flags  OpenFlags
	pos    int64
	closed bool
}

func (h *tieredHandle) node() (*node, error) {
	if h.closed {
		return nil, errno.New(errno.EBADF).WithSyscall("read")
	}
	n, ok := h.be.Memory.nodes[h.path]
	if !ok {
		return nil, errno.New(errno.EBADF).WithSyscall("read").WithPath(h.path)
	}
	return n, nil
}

func (h *tieredHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.be.Memory.mu.RLock()
	n, err := h.node()
	if err != nil {
		h.be.Memory.mu.RUnlock()
		return 0, err
	}
	size, blobID := n.stats.Size, n.blobID
	h.be.Memory.mu.RUnlock()

	if off >= size || blobID == "" {
		return 0, nil
	}
	length := int64(len(p))
	if off+length > size {
		length = size - off
	}
	data, err := h.be.readBlob(ctx, blobID, off, length)
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

// promoteFromCAS rewrites a CAS-backed node to page storage so a handle
// write has somewhere mutable to land; CAS objects are immutable by
// design.
func (h *tieredHandle) promoteFromCAS(ctx context.Context, n *node) error {
	hash := strings.TrimPrefix(n.blobID, casPrefix)
	_, existing, _, err := h.be.cas.Get(hash)
	if err != nil {
		return err
	}
	blobID := newBlobID()
	if err := h.be.pages.WriteAll(ctx, blobID, existing); err != nil {
		return err
	}
	_ = h.be.cas.Delete(hash)
	n.blobID = blobID
	return nil
}

func (h *tieredHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if !h.flags.Write && !h.flags.Append {
		return 0, errno.New(errno.EBADF).WithSyscall("write").WithPath(h.path)
	}

	h.be.Memory.mu.Lock()
	n, err := h.node()
	if err != nil {
		h.be.Memory.mu.Unlock()
		return 0, err
	}
	if h.flags.Append {
		off = n.stats.Size
	}
	if n.blobID == "" {
		n.blobID = newBlobID()
	} else if isCASBlob(n.blobID) {
		if err := h.promoteFromCAS(ctx, n); err != nil {
			h.be.Memory.mu.Unlock()
			return 0, err
		}
	}
	blobID := n.blobID
	h.be.Memory.mu.Unlock()

	if err := h.be.pages.UpdateRange(ctx, blobID, off, p); err != nil {
		return 0, err
	}

	h.be.Memory.mu.Lock()
	defer h.be.Memory.mu.Unlock()
	n, err = h.node()
	if err != nil {
		return 0, err
	}
	if off+int64(len(p)) > n.stats.Size {
		n.stats.Size = off + int64(len(p))
	}
	n.stats.Mtime = time.Now()
	n.stats.Ctime = time.Now()
	return len(p), nil
}

func (h *tieredHandle) Read(ctx context.Context, p []byte) (int, error) {
	n, err := h.ReadAt(ctx, p, h.pos)
	if err != nil {
		return 0, err
	}
	h.pos += int64(n)
	return n, nil
}

func (h *tieredHandle) Write(ctx context.Context, p []byte) (int, error) {
	off := h.pos
	if h.flags.Append {
		h.be.Memory.mu.RLock()
		if n, err := h.node(); err == nil {
			off = n.stats.Size
		}
		h.be.Memory.mu.RUnlock()
	}
	n, err := h.WriteAt(ctx, p, off)
	if err != nil {
		return 0, err
	}
	h.pos = off + int64(n)
	return n, nil
}

func (h *tieredHandle) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	h.be.Memory.mu.RLock()
	defer h.be.Memory.mu.RUnlock()
	n, err := h.node()
	if err != nil {
		return 0, err
	}
	switch whence {
	case posix.SEEKSET:
		h.pos = offset
	case posix.SEEKCUR:
		h.pos += offset
	case posix.SEEKEND:
		h.pos = n.stats.Size + offset
	default:
		return 0, errno.New(errno.EINVAL).WithSyscall("lseek").WithPath(h.path)
	}
	return h.pos, nil
}

func (h *tieredHandle) Stat(ctx context.Context) (Stats, error) {
	h.be.Memory.mu.RLock()
	defer h.be.Memory.mu.RUnlock()
	n, err := h.node()
	if err != nil {
		return Stats{}, err
	}
	return n.stats, nil
}

func (h *tieredHandle) Chmod(ctx context.Context, mode uint32) error {
	h.be.Memory.mu.Lock()
	defer h.be.Memory.mu.Unlock()
	n, err := h.node()
	if err != nil {
		return err
	}
	n.stats.Mode = mode
	n.stats.Ctime = time.Now()
	return nil
}

func (h *tieredHandle) Chown(ctx context.Context, uid, gid int) error {
	h.be.Memory.mu.Lock()
	defer h.be.Memory.mu.Unlock()
	n, err := h.node()
	if err != nil {
		return err
	}
	n.stats.UID, n.stats.GID = uid, gid
	n.stats.Ctime = time.Now()
	return nil
}

func (h *tieredHandle) Truncate(ctx context.Context, length int64) error {
	if !h.flags.Write && !h.flags.Append {
		return errno.New(errno.EBADF).WithSyscall("truncate").WithPath(h.path)
	}
	if length < 0 {
		return errno.New(errno.EINVAL).WithSyscall("truncate").WithPath(h.path)
	}

	h.be.Memory.mu.Lock()
	n, err := h.node()
	if err != nil {
		h.be.Memory.mu.Unlock()
		return err
	}
	if n.blobID == "" {
		n.blobID = newBlobID()
	} else if isCASBlob(n.blobID) {
		if err := h.promoteFromCAS(ctx, n); err != nil {
			h.be.Memory.mu.Unlock()
			return err
		}
	}
	blobID := n.blobID
	h.be.Memory.mu.Unlock()

	data, err := h.be.pages.ReadAll(ctx, blobID)
	if err != nil && !errno.Is(err, errno.ENOENT) {
		return err
	}
	if length < int64(len(data)) {
		data = data[:length]
	} else if length > int64(len(data)) {
		grown := make([]byte, length)
		copy(grown, data)
		data = grown
	}
	if err := h.be.pages.WriteAll(ctx, blobID, data); err != nil {
		return err
	}

	h.be.Memory.mu.Lock()
	defer h.be.Memory.mu.Unlock()
	n, err = h.node()
	if err != nil {
		return err
	}
	n.stats.Size = length
	n.stats.Mtime = time.Now()
	n.stats.Ctime = time.Now()
	if h.pos > length {
		h.pos = length
	}
	return nil
}

func (h *tieredHandle) Sync(ctx context.Context) error     { return nil }
func (h *tieredHandle) Datasync(ctx context.Context) error { return nil }

func (h *tieredHandle) Close(ctx context.Context) error {
	if h.closed {
		return errno.New(errno.EBADF).WithSyscall("close").WithPath(h.path)
	}
	h.closed = true
	return nil
}
