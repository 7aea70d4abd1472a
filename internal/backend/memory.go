package backend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/posixfs/posixfs/pkg/errno"
	"github.com/posixfs/posixfs/pkg/posix"
	"github.com/posixfs/posixfs/pkg/vpath"
)

const maxSymlinkDepth = 40

// node is a namespace entry in the in-memory reference backend. Directory
// nodes own a child-name set; file nodes own a data buffer; symlink nodes
// carry their target in Stats.Target. Sharing a *node across two path keys
// implements hard links (Stats.Nlink tracks the reference count). blobID is
// unused by Memory itself; TieredBackend (tiered.go) sets it to route a
// file's content through the page store or CAS instead of data, while
// reusing Memory's tree and metadata bookkeeping.
type node struct {
	stats    Stats
	data     []byte
	blobID   string
	children map[string]bool // only meaningful for directories
}

// Memory is the reference implementation of the backend contract:
// a node map keyed by normalised absolute path behind one coarse mutex
// rather than per-node locks.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// NewMemory constructs an empty in-memory backend with just the root
// directory present.
func NewMemory() *Memory {
	now := time.Now()
	m := &Memory{nodes: make(map[string]*node)}
	m.nodes["/"] = &node{
		stats: Stats{
			Kind: KindDirectory, Mode: 0o755,
			Atime: now, Mtime: now, Ctime: now, Birthtime: now,
			Nlink: 1,
		},
		children: make(map[string]bool),
	}
	return m
}

func (m *Memory) Capabilities() Capabilities { return Capabilities{Tiering: false} }

func (m *Memory) GetTier(ctx context.Context, path string) (string, error) { return "warm", nil }
func (m *Memory) Promote(ctx context.Context, path string) error           { return nil }
func (m *Memory) Demote(ctx context.Context, path string) error            { return nil }

// resolve walks path component by component, following symlinks (up to
// maxSymlinkDepth) for every intermediate segment, and for the final
// segment only when followFinal is true. It returns the fully normalised
// path the walk landed on; it does not itself fail when that path is
// absent from m.nodes — callers decide whether absence is an error.
func (m *Memory) resolve(path string, followFinal bool) (string, error) {
	queue := vpath.Split(path)
	cur := "/"
	depth := 0

	for len(queue) > 0 {
		seg := queue[0]
		queue = queue[1:]
		next := vpath.Join(cur, seg)

		n, exists := m.nodes[next]
		if !exists {
			if len(queue) == 0 {
				return next, nil
			}
			return "", errno.New(errno.ENOENT).WithPath(path)
		}

		if n.stats.Kind == KindSymlink {
			if len(queue) == 0 && !followFinal {
				return next, nil
			}
			depth++
			if depth > maxSymlinkDepth {
				return "", errno.New(errno.ELOOP).WithSyscall("realpath").WithPath(path)
			}
			var targetSegs []string
			if strings.HasPrefix(n.stats.Target, "/") {
				targetSegs = vpath.Split(n.stats.Target)
			} else {
				targetSegs = vpath.Split(vpath.Join(cur, n.stats.Target))
			}
			cur = "/"
			queue = append(append([]string{}, targetSegs...), queue...)
			continue
		}

		cur = next
	}
	return cur, nil
}

func (m *Memory) parentDir(resolved string) (*node, string, error) {
	parentPath := vpath.Dir(resolved)
	p, ok := m.nodes[parentPath]
	if !ok {
		return nil, "", errno.New(errno.ENOENT).WithPath(parentPath)
	}
	if !p.stats.IsDir() {
		return nil, "", errno.New(errno.ENOTDIR).WithPath(parentPath)
	}
	return p, parentPath, nil
}

func (m *Memory) ReadFile(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return nil, err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("open").WithPath(path)
	}
	if n.stats.IsDir() {
		return nil, errno.New(errno.EISDIR).WithSyscall("read").WithPath(path)
	}
	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

func (m *Memory) WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (int, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return 0, "", err
	}
	parent, _, err := m.parentDir(resolved)
	if err != nil {
		return 0, "", err
	}

	existing, exists := m.nodes[resolved]
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

	tier := opts.Tier
	if tier == "" {
		tier = "warm"
	}

	if exists {
		if opts.Flag == "a" {
			buf = append(append([]byte{}, existing.data...), buf...)
		}
		existing.data = buf
		existing.stats.Size = int64(len(buf))
		existing.stats.Mtime = now
		existing.stats.Ctime = now
	} else {
		m.nodes[resolved] = &node{
			stats: Stats{
				Kind: KindFile, Mode: mode, Size: int64(len(buf)),
				Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1,
			},
			data: buf,
		}
		parent.children[vpath.Base(resolved)] = true
	}
	return len(data), tier, nil
}

func (m *Memory) AppendFile(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return err
	}
	parent, _, err := m.parentDir(resolved)
	if err != nil {
		return err
	}

	now := time.Now()
	n, exists := m.nodes[resolved]
	if !exists {
		n = &node{stats: Stats{
			Kind: KindFile, Mode: 0o644,
			Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1,
		}}
		m.nodes[resolved] = n
		parent.children[vpath.Base(resolved)] = true
	} else if n.stats.IsDir() {
		return errno.New(errno.EISDIR).WithSyscall("write").WithPath(path)
	}
	n.data = append(n.data, data...)
	n.stats.Size = int64(len(n.data))
	n.stats.Mtime = now
	n.stats.Ctime = now
	return nil
}

func (m *Memory) Unlink(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved, err := m.resolve(path, false)
	if err != nil {
		return err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return errno.New(errno.ENOENT).WithSyscall("unlink").WithPath(path)
	}
	if n.stats.IsDir() {
		return errno.New(errno.EISDIR).WithSyscall("unlink").WithPath(path)
	}
	if parent, _, perr := m.parentDir(resolved); perr == nil {
		delete(parent.children, vpath.Base(resolved))
	}
	delete(m.nodes, resolved)
	n.stats.Nlink--
	n.stats.Ctime = time.Now()
	return nil
}

func (m *Memory) Rename(ctx context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldResolved, err := m.resolve(oldPath, false)
	if err != nil {
		return err
	}
	n, ok := m.nodes[oldResolved]
	if !ok {
		return errno.New(errno.ENOENT).WithSyscall("rename").WithPath(oldPath).WithDest(newPath)
	}

	newResolved, err := m.resolve(newPath, false)
	if err != nil {
		return err
	}
	newParent, _, err := m.parentDir(newResolved)
	if err != nil {
		return err
	}

	if dest, exists := m.nodes[newResolved]; exists {
		if dest.stats.IsDir() && !n.stats.IsDir() {
			return errno.New(errno.EISDIR).WithSyscall("rename").WithPath(oldPath).WithDest(newPath)
		}
		if !dest.stats.IsDir() && n.stats.IsDir() {
			return errno.New(errno.ENOTDIR).WithSyscall("rename").WithPath(oldPath).WithDest(newPath)
		}
		if dest.stats.IsDir() && len(dest.children) > 0 {
			return errno.New(errno.ENOTEMPTY).WithSyscall("rename").WithPath(oldPath).WithDest(newPath)
		}
		delete(m.nodes, newResolved)
	}

	oldParent, _, _ := m.parentDir(oldResolved)
	if oldParent != nil {
		delete(oldParent.children, vpath.Base(oldResolved))
	}

	m.nodes[newResolved] = n
	newParent.children[vpath.Base(newResolved)] = true
	delete(m.nodes, oldResolved)
	n.stats.Ctime = time.Now()

	if n.stats.IsDir() {
		m.renameSubtree(oldResolved, newResolved)
	}
	return nil
}

// renameSubtree rewrites the storage keys of every descendant of oldPrefix
// to live under newPrefix instead, preserving the directory's children.
func (m *Memory) renameSubtree(oldPrefix, newPrefix string) {
	for path, n := range m.nodes {
		if path == oldPrefix {
			continue
		}
		if vpath.IsAncestor(oldPrefix, path) {
			rel := vpath.Relative(oldPrefix, path)
			moved := vpath.Join(newPrefix, rel)
			m.nodes[moved] = n
			delete(m.nodes, path)
		}
	}
}

func (m *Memory) CopyFile(ctx context.Context, src, dest string, flags CopyFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	srcResolved, err := m.resolve(src, true)
	if err != nil {
		return err
	}
	srcNode, ok := m.nodes[srcResolved]
	if !ok {
		return errno.New(errno.ENOENT).WithSyscall("copyFile").WithPath(src)
	}
	if srcNode.stats.IsDir() {
		return errno.New(errno.EISDIR).WithSyscall("copyFile").WithPath(src)
	}

	destResolved, err := m.resolve(dest, true)
	if err != nil {
		return err
	}
	parent, _, err := m.parentDir(destResolved)
	if err != nil {
		return err
	}
	if existing, exists := m.nodes[destResolved]; exists {
		if flags.Excl {
			return errno.New(errno.EEXIST).WithSyscall("copyFile").WithPath(dest)
		}
		if existing.stats.IsDir() {
			return errno.New(errno.EISDIR).WithSyscall("copyFile").WithPath(dest)
		}
	}

	now := time.Now()
	buf := make([]byte, len(srcNode.data))
	copy(buf, srcNode.data)
	m.nodes[destResolved] = &node{
		stats: Stats{
			Kind: KindFile, Mode: srcNode.stats.Mode, Size: int64(len(buf)),
			Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1,
		},
		data: buf,
	}
	parent.children[vpath.Base(destResolved)] = true
	return nil
}

func (m *Memory) Mkdir(ctx context.Context, path string, opts MkdirOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := opts.Mode
	if mode == 0 {
		mode = 0o755
	}

	if opts.Recursive {
		segs := vpath.Split(path)
		cur := "/"
		for _, seg := range segs {
			next := vpath.Join(cur, seg)
			if n, exists := m.nodes[next]; exists {
				if !n.stats.IsDir() {
					return errno.New(errno.ENOTDIR).WithSyscall("mkdir").WithPath(next)
				}
				cur = next
				continue
			}
			parent := m.nodes[cur]
			now := time.Now()
			m.nodes[next] = &node{
				stats:    Stats{Kind: KindDirectory, Mode: mode, Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1},
				children: make(map[string]bool),
			}
			parent.children[vpath.Base(next)] = true
			cur = next
		}
		return nil
	}

	resolved, err := m.resolve(path, true)
	if err != nil {
		return err
	}
	if _, exists := m.nodes[resolved]; exists {
		return errno.New(errno.EEXIST).WithSyscall("mkdir").WithPath(path)
	}
	parent, _, err := m.parentDir(resolved)
	if err != nil {
		return err
	}
	now := time.Now()
	m.nodes[resolved] = &node{
		stats:    Stats{Kind: KindDirectory, Mode: mode, Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1},
		children: make(map[string]bool),
	}
	parent.children[vpath.Base(resolved)] = true
	return nil
}

func (m *Memory) Rmdir(ctx context.Context, path string, opts RmdirOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return errno.New(errno.ENOENT).WithSyscall("rmdir").WithPath(path)
	}
	if !n.stats.IsDir() {
		return errno.New(errno.ENOTDIR).WithSyscall("rmdir").WithPath(path)
	}
	if len(n.children) > 0 && !opts.Recursive {
		return errno.New(errno.ENOTEMPTY).WithSyscall("rmdir").WithPath(path)
	}

	if opts.Recursive {
		for path := range m.nodes {
			if vpath.IsAncestor(resolved, path) && path != resolved {
				delete(m.nodes, path)
			}
		}
	}
	delete(m.nodes, resolved)
	if parent, _, err := m.parentDir(resolved); err == nil {
		delete(parent.children, vpath.Base(resolved))
	}
	return nil
}

func (m *Memory) Readdir(ctx context.Context, path string, opts ReaddirOptions) ([]Dirent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return nil, err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("readdir").WithPath(path)
	}
	if !n.stats.IsDir() {
		return nil, errno.New(errno.ENOTDIR).WithSyscall("readdir").WithPath(path)
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Dirent, len(names))
	for i, name := range names {
		child := m.nodes[vpath.Join(resolved, name)]
		out[i] = Dirent{Name: name, Kind: child.stats.Kind}
	}
	return out, nil
}

func (m *Memory) Stat(ctx context.Context, path string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return Stats{}, err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return Stats{}, errno.New(errno.ENOENT).WithSyscall("stat").WithPath(path)
	}
	return n.stats, nil
}

func (m *Memory) Lstat(ctx context.Context, path string) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, false)
	if err != nil {
		return Stats{}, err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return Stats{}, errno.New(errno.ENOENT).WithSyscall("lstat").WithPath(path)
	}
	return n.stats, nil
}

func (m *Memory) Exists(ctx context.Context, path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return false
	}
	_, ok := m.nodes[resolved]
	return ok
}

func (m *Memory) Access(ctx context.Context, path string, mode int) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, true)
	if err != nil {
		return err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return errno.New(errno.ENOENT).WithSyscall("access").WithPath(path)
	}
	if mode == posix.FOK {
		return nil
	}
	perm := n.stats.Mode & 0o700 >> 6 // owner bits only, single-user reference backend
	if mode&posix.ROK != 0 && perm&0o4 == 0 {
		return errno.New(errno.EACCES).WithSyscall("access").WithPath(path)
	}
	if mode&posix.WOK != 0 && perm&0o2 == 0 {
		return errno.New(errno.EACCES).WithSyscall("access").WithPath(path)
	}
	if mode&posix.XOK != 0 && perm&0o1 == 0 {
		return errno.New(errno.EACCES).WithSyscall("access").WithPath(path)
	}
	return nil
}

func (m *Memory) Chmod(ctx context.Context, path string, mode uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.mustResolve(path, true, "chmod")
	if err != nil {
		return err
	}
	n.stats.Mode = mode
	n.stats.Ctime = time.Now()
	return nil
}

func (m *Memory) Chown(ctx context.Context, path string, uid, gid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.mustResolve(path, true, "chown")
	if err != nil {
		return err
	}
	n.stats.UID = uid
	n.stats.GID = gid
	n.stats.Ctime = time.Now()
	return nil
}

func (m *Memory) Utimes(ctx context.Context, path string, atime, mtime int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.mustResolve(path, true, "utimes")
	if err != nil {
		return err
	}
	n.stats.Atime = time.Unix(0, atime)
	n.stats.Mtime = time.Unix(0, mtime)
	n.stats.Ctime = time.Now()
	return nil
}

func (m *Memory) mustResolve(path string, followFinal bool, syscall string) (*node, error) {
	resolved, err := m.resolve(path, followFinal)
	if err != nil {
		return nil, err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall(syscall).WithPath(path)
	}
	return n, nil
}

func (m *Memory) Symlink(ctx context.Context, target, linkPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolved, err := m.resolve(linkPath, false)
	if err != nil {
		return err
	}
	if _, exists := m.nodes[resolved]; exists {
		return errno.New(errno.EEXIST).WithSyscall("symlink").WithPath(linkPath)
	}
	parent, _, err := m.parentDir(resolved)
	if err != nil {
		return err
	}
	now := time.Now()
	m.nodes[resolved] = &node{stats: Stats{
		Kind: KindSymlink, Mode: 0o777, Size: int64(len(target)), Target: target,
		Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1,
	}}
	parent.children[vpath.Base(resolved)] = true
	return nil
}

func (m *Memory) Link(ctx context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	oldResolved, err := m.resolve(oldPath, true)
	if err != nil {
		return err
	}
	n, ok := m.nodes[oldResolved]
	if !ok {
		return errno.New(errno.ENOENT).WithSyscall("link").WithPath(oldPath)
	}
	if n.stats.IsDir() {
		return errno.New(errno.EPERM).WithSyscall("link").WithPath(oldPath)
	}

	newResolved, err := m.resolve(newPath, false)
	if err != nil {
		return err
	}
	if _, exists := m.nodes[newResolved]; exists {
		return errno.New(errno.EEXIST).WithSyscall("link").WithPath(newPath)
	}
	parent, _, err := m.parentDir(newResolved)
	if err != nil {
		return err
	}
	n.stats.Nlink++
	m.nodes[newResolved] = n
	parent.children[vpath.Base(newResolved)] = true
	return nil
}

func (m *Memory) Readlink(ctx context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resolved, err := m.resolve(path, false)
	if err != nil {
		return "", err
	}
	n, ok := m.nodes[resolved]
	if !ok {
		return "", errno.New(errno.ENOENT).WithSyscall("readlink").WithPath(path)
	}
	if !n.stats.IsSymlink() {
		return "", errno.New(errno.EINVAL).WithSyscall("readlink").WithPath(path)
	}
	return n.stats.Target, nil
}

func (m *Memory) Realpath(ctx context.Context, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolve(path, true)
}

func (m *Memory) Mkdtemp(ctx context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var suffixBytes [6]byte
	for attempt := 0; attempt < 100; attempt++ {
		if _, err := rand.Read(suffixBytes[:]); err != nil {
			return "", errno.New(errno.EINVAL).WithSyscall("mkdtemp")
		}
		candidate := prefix + hex.EncodeToString(suffixBytes[:])
		resolved, err := m.resolve(candidate, false)
		if err != nil {
			return "", err
		}
		if _, exists := m.nodes[resolved]; exists {
			continue
		}
		parent, _, err := m.parentDir(resolved)
		if err != nil {
			return "", err
		}
		now := time.Now()
		m.nodes[resolved] = &node{
			stats:    Stats{Kind: KindDirectory, Mode: 0o700, Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1},
			children: make(map[string]bool),
		}
		parent.children[vpath.Base(resolved)] = true
		return resolved, nil
	}
	return "", errno.New(errno.EEXIST).WithSyscall("mkdtemp").WithPath(prefix)
}

func (m *Memory) Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (FileHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	followFinal := !flags.NoFollow
	resolved, err := m.resolve(path, followFinal)
	if err != nil {
		return nil, err
	}

	n, exists := m.nodes[resolved]
	if !exists {
		if !flags.Create {
			return nil, errno.New(errno.ENOENT).WithSyscall("open").WithPath(path)
		}
		parent, _, err := m.parentDir(resolved)
		if err != nil {
			return nil, err
		}
		if mode == 0 {
			mode = 0o644
		}
		now := time.Now()
		n = &node{stats: Stats{Kind: KindFile, Mode: mode, Atime: now, Mtime: now, Ctime: now, Birthtime: now, Nlink: 1}}
		m.nodes[resolved] = n
		parent.children[vpath.Base(resolved)] = true
	} else {
		if flags.Create && flags.Excl {
			return nil, errno.New(errno.EEXIST).WithSyscall("open").WithPath(path)
		}
		if flags.Directory && !n.stats.IsDir() {
			return nil, errno.New(errno.ENOTDIR).WithSyscall("open").WithPath(path)
		}
		if n.stats.IsDir() && (flags.Write || flags.Append) {
			return nil, errno.New(errno.EISDIR).WithSyscall("open").WithPath(path)
		}
		if flags.NoFollow && n.stats.IsSymlink() {
			return nil, errno.New(errno.ELOOP).WithSyscall("open").WithPath(path)
		}
	}

	if flags.Truncate && flags.Write {
		n.data = nil
		n.stats.Size = 0
		n.stats.Mtime = time.Now()
	}

	return &memHandle{backend: m, path: resolved, flags: flags}, nil
}

// memHandle is the in-memory reference FileHandle. It resolves its node
// fresh from the backend on every operation (so chmod/rename visibility is
// consistent with other handles) and tracks its own position and
// open/closed state.
type memHandle struct {
	backend *Memory
	path    string
	flags   OpenFlags
	pos     int64
	closed  bool
}

func (h *memHandle) node() (*node, error) {
	if h.closed {
		return nil, errno.New(errno.EBADF).WithSyscall("read")
	}
	n, ok := h.backend.nodes[h.path]
	if !ok {
		return nil, errno.New(errno.EBADF).WithSyscall("read").WithPath(h.path)
	}
	return n, nil
}

func (h *memHandle) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	n, err := h.node()
	if err != nil {
		return 0, err
	}
	if off >= int64(len(n.data)) {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > int64(len(n.data)) {
		end = int64(len(n.data))
	}
	return copy(p, n.data[off:end]), nil
}

func (h *memHandle) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	n, err := h.node()
	if err != nil {
		return 0, err
	}
	if !h.flags.Write && !h.flags.Append {
		return 0, errno.New(errno.EBADF).WithSyscall("write").WithPath(h.path)
	}
	if h.flags.Append {
		off = int64(len(n.data))
	}
	need := off + int64(len(p))
	if need > int64(len(n.data)) {
		grown := make([]byte, need)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:], p)
	n.stats.Size = int64(len(n.data))
	n.stats.Mtime = time.Now()
	n.stats.Ctime = time.Now()
	return len(p), nil
}

func (h *memHandle) Read(ctx context.Context, p []byte) (int, error) {
	n, err := h.ReadAt(ctx, p, h.pos)
	if err != nil {
		return 0, err
	}
	h.pos += int64(n)
	return n, nil
}

func (h *memHandle) Write(ctx context.Context, p []byte) (int, error) {
	off := h.pos
	if h.flags.Append {
		h.backend.mu.RLock()
		if n, err := h.node(); err == nil {
			off = int64(len(n.data))
		}
		h.backend.mu.RUnlock()
	}
	n, err := h.WriteAt(ctx, p, off)
	if err != nil {
		return 0, err
	}
	h.pos = off + int64(n)
	return n, nil
}

func (h *memHandle) Seek(ctx context.Context, offset int64, whence int) (int64, error) {
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
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
		h.pos = int64(len(n.data)) + offset
	default:
		return 0, errno.New(errno.EINVAL).WithSyscall("lseek").WithPath(h.path)
	}
	return h.pos, nil
}

func (h *memHandle) Stat(ctx context.Context) (Stats, error) {
	h.backend.mu.RLock()
	defer h.backend.mu.RUnlock()
	n, err := h.node()
	if err != nil {
		return Stats{}, err
	}
	return n.stats, nil
}

func (h *memHandle) Chmod(ctx context.Context, mode uint32) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	n, err := h.node()
	if err != nil {
		return err
	}
	n.stats.Mode = mode
	n.stats.Ctime = time.Now()
	return nil
}

func (h *memHandle) Chown(ctx context.Context, uid, gid int) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	n, err := h.node()
	if err != nil {
		return err
	}
	n.stats.UID, n.stats.GID = uid, gid
	n.stats.Ctime = time.Now()
	return nil
}

func (h *memHandle) Truncate(ctx context.Context, length int64) error {
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()

	if !h.flags.Write && !h.flags.Append {
		return errno.New(errno.EBADF).WithSyscall("truncate").WithPath(h.path)
	}
	if length < 0 {
		return errno.New(errno.EINVAL).WithSyscall("truncate").WithPath(h.path)
	}
	n, err := h.node()
	if err != nil {
		return err
	}

	if length < int64(len(n.data)) {
		n.data = n.data[:length]
	} else if length > int64(len(n.data)) {
		grown := make([]byte, length)
		copy(grown, n.data)
		n.data = grown
	}
	n.stats.Size = length
	n.stats.Mtime = time.Now()
	n.stats.Ctime = time.Now()
	if h.pos > length {
		h.pos = length
	}
	return nil
}

func (h *memHandle) Sync(ctx context.Context) error     { return nil }
func (h *memHandle) Datasync(ctx context.Context) error { return nil }

func (h *memHandle) Close(ctx context.Context) error {
	if h.closed {
		return errno.New(errno.EBADF).WithSyscall("close").WithPath(h.path)
	}
	h.closed = true
	return nil
}
