package backend

import "context"

// FileHandle is an opaque reference to an open file. Positioned
// reads/writes leave the handle's position untouched; unpositioned
// reads/writes advance it by the byte count.
type FileHandle interface {
	// ReadAt reads len(p) bytes starting at off without moving the
	// handle's position.
	ReadAt(ctx context.Context, p []byte, off int64) (n int, err error)
	// WriteAt writes p starting at off without moving the handle's
	// position (unless the handle is in append mode, which always
	// targets current EOF regardless of off).
	WriteAt(ctx context.Context, p []byte, off int64) (n int, err error)
	// Read reads into p at the current position and advances it.
	Read(ctx context.Context, p []byte) (n int, err error)
	// Write writes p at the current position (or EOF, in append mode)
	// and advances the position.
	Write(ctx context.Context, p []byte) (n int, err error)
	// Seek repositions the handle; whence is one of posix.SEEK*.
	Seek(ctx context.Context, offset int64, whence int) (int64, error)
	// Stat returns the handle's current backing file stats.
	Stat(ctx context.Context) (Stats, error)
	// Chmod/Chown update the backing file's metadata via this handle.
	Chmod(ctx context.Context, mode uint32) error
	Chown(ctx context.Context, uid, gid int) error
	// Truncate shrinks or zero-extends the backing file. len < 0 is
	// EINVAL; the position is clamped if it now exceeds the new size.
	// A read-only handle fails EBADF.
	Truncate(ctx context.Context, length int64) error
	// Sync/Datasync flush buffered data (and, for Sync, metadata) to the
	// backend's durable store.
	Sync(ctx context.Context) error
	Datasync(ctx context.Context) error
	// Close invalidates the handle. A second Close returns EBADF.
	Close(ctx context.Context) error
}

// Backend is the pluggable backend contract. Every operation is
// asynchronous (ctx-bearing) and returns *errno.Error for POSIX-shaped
// failures. Tiering operations are optional — callers must probe via
// Capabilities before invoking getTier/promote/demote.
type Backend interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, opts WriteOptions) (bytesWritten int, tier string, err error)
	AppendFile(ctx context.Context, path string, data []byte) error
	Unlink(ctx context.Context, path string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	CopyFile(ctx context.Context, src, dest string, flags CopyFlags) error
	Mkdir(ctx context.Context, path string, opts MkdirOptions) error
	Rmdir(ctx context.Context, path string, opts RmdirOptions) error
	Readdir(ctx context.Context, path string, opts ReaddirOptions) ([]Dirent, error)
	Stat(ctx context.Context, path string) (Stats, error)
	Lstat(ctx context.Context, path string) (Stats, error)
	Exists(ctx context.Context, path string) bool
	Access(ctx context.Context, path string, mode int) error
	Chmod(ctx context.Context, path string, mode uint32) error
	Chown(ctx context.Context, path string, uid, gid int) error
	Utimes(ctx context.Context, path string, atime, mtime int64) error
	Symlink(ctx context.Context, target, linkPath string) error
	Link(ctx context.Context, oldPath, newPath string) error
	Readlink(ctx context.Context, path string) (string, error)
	Realpath(ctx context.Context, path string) (string, error)
	Mkdtemp(ctx context.Context, prefix string) (string, error)
	Open(ctx context.Context, path string, flags OpenFlags, mode uint32) (FileHandle, error)

	// Capabilities reports which optional (tiering) operations this
	// backend supports.
	Capabilities() Capabilities
	GetTier(ctx context.Context, path string) (string, error)
	Promote(ctx context.Context, path string) error
	Demote(ctx context.Context, path string) error
}

// Capabilities advertises optional backend operations.
type Capabilities struct {
	Tiering bool
}
