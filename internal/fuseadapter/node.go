package fuseadapter

import (
	"context"
	"log"
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/filesystem"
	"github.com/posixfs/posixfs/pkg/errno"
)

func safeU64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// toErrno translates a façade/backend error (an *errno.Error) into
// the syscall.Errno go-fuse expects.
func toErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	code, ok := errno.Errno(err)
	if !ok {
		return syscall.EIO
	}
	switch -code {
	case 2:
		return syscall.ENOENT
	case 17:
		return syscall.EEXIST
	case 21:
		return syscall.EISDIR
	case 20:
		return syscall.ENOTDIR
	case 13:
		return syscall.EACCES
	case 1:
		return syscall.EPERM
	case 39:
		return syscall.ENOTEMPTY
	case 9:
		return syscall.EBADF
	case 22:
		return syscall.EINVAL
	case 40:
		return syscall.ELOOP
	case 36:
		return syscall.ENAMETOOLONG
	case 28:
		return syscall.ENOSPC
	case 30:
		return syscall.EROFS
	case 16:
		return syscall.EBUSY
	case 24:
		return syscall.EMFILE
	case 23:
		return syscall.ENFILE
	case 18:
		return syscall.EXDEV
	default:
		return syscall.EIO
	}
}

// FileSystem adapts a filesystem.Facade to go-fuse's node API: one root
// FileSystem value, with per-entry nodes resolving through the façade's
// Stat/Readdir/Open.
type FileSystem struct {
	facade *filesystem.Facade
	uid    uint32
	gid    uint32

	mu    sync.Mutex
	stats Stats
}

// Stats tracks adapter-level operation counts.
type Stats struct {
	Lookups int64
	Opens   int64
	Reads   int64
	Writes  int64
	Errors  int64
}

// New builds a FileSystem over facade, defaulting uid/gid to the process's.
func New(facade *filesystem.Facade, uid, gid uint32) *FileSystem {
	return &FileSystem{facade: facade, uid: uid, gid: gid}
}

func (fsys *FileSystem) Root() fs.InodeEmbedder {
	return &DirectoryNode{fsys: fsys, path: "/"}
}

func (fsys *FileSystem) Stats() Stats {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	return fsys.stats
}

func (fsys *FileSystem) recordError() {
	fsys.mu.Lock()
	fsys.stats.Errors++
	fsys.mu.Unlock()
}

func statToAttr(st backend.Stats, out *fuse.Attr) {
	out.Mode = st.Mode
	switch st.Kind {
	case backend.KindDirectory:
		out.Mode |= syscallS_IFDIR
	case backend.KindSymlink:
		out.Mode |= syscallS_IFLNK
	default:
		out.Mode |= syscallS_IFREG
	}
	out.Size = safeU64(st.Size)
	out.Uid = uint32(st.UID)
	out.Gid = uint32(st.GID)
	out.Nlink = uint32(st.Nlink)
	out.Mtime = safeU64(st.Mtime.Unix())
	out.Atime = safeU64(st.Atime.Unix())
	out.Ctime = safeU64(st.Ctime.Unix())
}

const (
	syscallS_IFDIR = 0o040000
	syscallS_IFLNK = 0o120000
	syscallS_IFREG = 0o100000
)

// DirectoryNode represents a directory in the façade's namespace.
type DirectoryNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.NodeLookuper = (*DirectoryNode)(nil)
var _ fs.NodeReaddirer = (*DirectoryNode)(nil)
var _ fs.NodeMkdirer = (*DirectoryNode)(nil)
var _ fs.NodeCreater = (*DirectoryNode)(nil)
var _ fs.NodeUnlinker = (*DirectoryNode)(nil)
var _ fs.NodeRmdirer = (*DirectoryNode)(nil)
var _ fs.NodeRenamer = (*DirectoryNode)(nil)
var _ fs.NodeSymlinker = (*DirectoryNode)(nil)
var _ fs.NodeGetattrer = (*DirectoryNode)(nil)

func (n *DirectoryNode) join(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func (n *DirectoryNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n.fsys.mu.Lock()
	n.fsys.stats.Lookups++
	n.fsys.mu.Unlock()

	childPath := n.join(name)
	st, err := n.fsys.facade.Lstat(ctx, childPath)
	if err != nil {
		n.fsys.recordError()
		return nil, toErrno(err)
	}
	statToAttr(st, &out.Attr)

	if st.IsDir() {
		child := &DirectoryNode{fsys: n.fsys, path: childPath}
		return n.NewInode(ctx, child, fs.StableAttr{Mode: syscallS_IFDIR}), 0
	}
	if st.IsSymlink() {
		child := &SymlinkNode{fsys: n.fsys, path: childPath}
		return n.NewInode(ctx, child, fs.StableAttr{Mode: syscallS_IFLNK}), 0
	}
	child := &FileNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscallS_IFREG}), 0
}

func (n *DirectoryNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.fsys.facade.Stat(ctx, n.path)
	if err != nil {
		return toErrno(err)
	}
	statToAttr(st, &out.Attr)
	return 0
}

func (n *DirectoryNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	dirents, err := n.fsys.facade.Readdir(ctx, n.path, backend.ReaddirOptions{WithFileTypes: true})
	if err != nil {
		n.fsys.recordError()
		log.Printf("posixfs fuse: readdir %s: %v", n.path, err)
		return nil, toErrno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(dirents))
	for _, d := range dirents {
		mode := uint32(syscallS_IFREG)
		switch d.Kind {
		case backend.KindDirectory:
			mode = syscallS_IFDIR
		case backend.KindSymlink:
			mode = syscallS_IFLNK
		}
		entries = append(entries, fuse.DirEntry{Name: d.Name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *DirectoryNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.join(name)
	if err := n.fsys.facade.Mkdir(ctx, childPath, backend.MkdirOptions{Mode: mode}); err != nil {
		n.fsys.recordError()
		return nil, toErrno(err)
	}
	child := &DirectoryNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscallS_IFDIR}), 0
}

func (n *DirectoryNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.join(name)
	of := openFlagsFromSyscall(flags)
	of.Create = true
	h, err := n.fsys.facade.Open(ctx, childPath, of, mode)
	if err != nil {
		n.fsys.recordError()
		return nil, nil, 0, toErrno(err)
	}
	child := &FileNode{fsys: n.fsys, path: childPath}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscallS_IFREG})
	return inode, &FileHandle{fsys: n.fsys, h: h}, 0, 0
}

func (n *DirectoryNode) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := n.fsys.facade.Unlink(ctx, n.join(name)); err != nil {
		n.fsys.recordError()
		return toErrno(err)
	}
	return 0
}

func (n *DirectoryNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := n.fsys.facade.Rmdir(ctx, n.join(name), backend.RmdirOptions{}); err != nil {
		n.fsys.recordError()
		return toErrno(err)
	}
	return 0
}

func (n *DirectoryNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	newDir, ok := newParent.(*DirectoryNode)
	if !ok {
		return syscall.EINVAL
	}
	if err := n.fsys.facade.Rename(ctx, n.join(name), newDir.join(newName)); err != nil {
		n.fsys.recordError()
		return toErrno(err)
	}
	return 0
}

func (n *DirectoryNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.join(name)
	if err := n.fsys.facade.Symlink(ctx, target, childPath); err != nil {
		n.fsys.recordError()
		return nil, toErrno(err)
	}
	child := &SymlinkNode{fsys: n.fsys, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: syscallS_IFLNK}), 0
}

// FileNode represents a regular file.
type FileNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.NodeOpener = (*FileNode)(nil)
var _ fs.NodeGetattrer = (*FileNode)(nil)
var _ fs.NodeSetattrer = (*FileNode)(nil)

func openFlagsFromSyscall(flags uint32) backend.OpenFlags {
	accmode := flags & syscall.O_ACCMODE
	return backend.OpenFlags{
		Read:      accmode == syscall.O_RDONLY || accmode == syscall.O_RDWR,
		Write:     accmode == syscall.O_WRONLY || accmode == syscall.O_RDWR,
		Append:    flags&syscall.O_APPEND != 0,
		Create:    flags&syscall.O_CREAT != 0,
		Excl:      flags&syscall.O_EXCL != 0,
		Truncate:  flags&syscall.O_TRUNC != 0,
		Sync:      flags&syscall.O_SYNC != 0,
		Directory: flags&syscall.O_DIRECTORY != 0,
		NoFollow:  flags&syscall.O_NOFOLLOW != 0,
	}
}

func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f.fsys.mu.Lock()
	f.fsys.stats.Opens++
	f.fsys.mu.Unlock()

	h, err := f.fsys.facade.Open(ctx, f.path, openFlagsFromSyscall(flags), 0)
	if err != nil {
		f.fsys.recordError()
		return nil, 0, toErrno(err)
	}
	return &FileHandle{fsys: f.fsys, h: h}, 0, 0
}

func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := f.fsys.facade.Stat(ctx, f.path)
	if err != nil {
		return toErrno(err)
	}
	statToAttr(st, &out.Attr)
	return 0
}

func (f *FileNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if handle, ok := fh.(*FileHandle); ok {
			if err := handle.h.Truncate(ctx, int64(size)); err != nil {
				return toErrno(err)
			}
		}
	}
	if mode, ok := in.GetMode(); ok {
		if err := f.fsys.facade.Chmod(ctx, f.path, mode); err != nil {
			return toErrno(err)
		}
	}
	if atime, mok := in.GetATime(); mok {
		mtime, hasM := in.GetMTime()
		if !hasM {
			mtime = atime
		}
		_ = f.fsys.facade.Utimes(ctx, f.path, atime.Unix(), mtime.Unix())
	}
	st, err := f.fsys.facade.Stat(ctx, f.path)
	if err != nil {
		return toErrno(err)
	}
	statToAttr(st, &out.Attr)
	return 0
}

// FileHandle wraps a backend.FileHandle for go-fuse's positioned I/O calls.
type FileHandle struct {
	fsys *FileSystem
	h    backend.FileHandle
}

var _ fs.FileReader = (*FileHandle)(nil)
var _ fs.FileWriter = (*FileHandle)(nil)
var _ fs.FileFlusher = (*FileHandle)(nil)
var _ fs.FileReleaser = (*FileHandle)(nil)
var _ fs.FileFsyncer = (*FileHandle)(nil)

func (h *FileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.fsys.mu.Lock()
	h.fsys.stats.Reads++
	h.fsys.mu.Unlock()

	n, err := h.h.ReadAt(ctx, dest, off)
	if err != nil && n == 0 {
		h.fsys.recordError()
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *FileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.fsys.mu.Lock()
	h.fsys.stats.Writes++
	h.fsys.mu.Unlock()

	n, err := h.h.WriteAt(ctx, data, off)
	if err != nil {
		h.fsys.recordError()
		return uint32(n), toErrno(err)
	}
	return uint32(n), 0
}

func (h *FileHandle) Flush(ctx context.Context) syscall.Errno {
	return toErrno(h.h.Sync(ctx))
}

func (h *FileHandle) Release(ctx context.Context) syscall.Errno {
	return toErrno(h.h.Close(ctx))
}

func (h *FileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return toErrno(h.h.Sync(ctx))
}

// SymlinkNode represents a symbolic link.
type SymlinkNode struct {
	fs.Inode
	fsys *FileSystem
	path string
}

var _ fs.NodeReadlinker = (*SymlinkNode)(nil)
var _ fs.NodeGetattrer = (*SymlinkNode)(nil)

func (n *SymlinkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.fsys.facade.Readlink(ctx, n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	return []byte(target), 0
}

func (n *SymlinkNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.fsys.facade.Lstat(ctx, n.path)
	if err != nil {
		return toErrno(err)
	}
	statToAttr(st, &out.Attr)
	return 0
}
