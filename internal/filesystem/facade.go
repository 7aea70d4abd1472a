// Package filesystem implements the POSIX-shaped filesystem façade: the
// primary entry point that resolves every call against a rooted,
// possibly read-only view of a backend.Backend, and dispatches
// glob/grep/find queries to their respective drivers. The façade owns no
// state beyond its frozen configuration and metrics aggregator; all
// namespace and content state lives in the backend.
package filesystem

import (
	"context"
	"time"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/config"
	"github.com/posixfs/posixfs/internal/find"
	"github.com/posixfs/posixfs/internal/glob"
	"github.com/posixfs/posixfs/internal/grep"
	"github.com/posixfs/posixfs/internal/metrics"
	"github.com/posixfs/posixfs/pkg/errno"
	"github.com/posixfs/posixfs/pkg/vpath"
)

// Facade is the filesystem façade: a rooted, optionally read-only view of
// a single backend, with glob/grep/find layered on top.
type Facade struct {
	cfg     config.FacadeConfig
	be      backend.Backend
	metrics *metrics.DetailedPerformanceMetrics
}

// New builds a Facade over be, scoped to cfg's rootPath.
func New(cfg config.FacadeConfig, be backend.Backend) *Facade {
	return &Facade{cfg: cfg, be: be, metrics: metrics.NewDetailedPerformanceMetrics(1000, true)}
}

// Config returns the façade's frozen configuration.
func (f *Facade) Config() config.FacadeConfig { return f.cfg }

// Metrics returns the façade's per-operation/per-file/per-tier performance
// aggregator (internal/metrics.DetailedPerformanceMetrics).
func (f *Facade) Metrics() *metrics.DetailedPerformanceMetrics { return f.metrics }

// tierSource reports which tier last served resolvedPath, for metrics
// purposes. Backends that don't support tiering always read as
// TierNone rather than probing GetTier.
func (f *Facade) tierSource(ctx context.Context, resolvedPath string) metrics.TierSourceType {
	if !f.be.Capabilities().Tiering {
		return metrics.TierNone
	}
	tier, err := f.be.GetTier(ctx, resolvedPath)
	if err != nil {
		return metrics.TierNone
	}
	switch tier {
	case "warm":
		return metrics.TierWarm
	case "cold":
		return metrics.TierCold
	case "cas":
		return metrics.TierCAS
	default:
		return metrics.TierNone
	}
}

// resolve maps a façade-relative path onto the backend's absolute
// namespace, rooted at f.cfg.RootPath().
func (f *Facade) resolve(path string) string {
	return vpath.Join(f.cfg.RootPath(), path)
}

// guardWrite rejects mutating calls against a read-only façade.
func (f *Facade) guardWrite(path string) error {
	if f.cfg.ReadOnly() {
		return errno.New(errno.EROFS).WithSyscall("write").WithPath(path)
	}
	return nil
}

func (f *Facade) ReadFile(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	resolved := f.resolve(path)
	data, err := f.be.ReadFile(ctx, resolved)
	f.metrics.RecordOperation(metrics.OpRead, resolved, time.Since(start), int64(len(data)), f.tierSource(ctx, resolved), err)
	return data, err
}

func (f *Facade) WriteFile(ctx context.Context, path string, data []byte, opts backend.WriteOptions) (int, string, error) {
	if err := f.guardWrite(path); err != nil {
		return 0, "", err
	}
	if opts.Mode == 0 {
		opts.Mode = f.cfg.Mode()
	}
	start := time.Now()
	resolved := f.resolve(path)
	n, tier, err := f.be.WriteFile(ctx, resolved, data, opts)
	f.metrics.RecordOperation(metrics.OpWrite, resolved, time.Since(start), int64(n), f.tierSource(ctx, resolved), err)
	return n, tier, err
}

func (f *Facade) AppendFile(ctx context.Context, path string, data []byte) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	start := time.Now()
	resolved := f.resolve(path)
	err := f.be.AppendFile(ctx, resolved, data)
	f.metrics.RecordOperation(metrics.OpAppend, resolved, time.Since(start), int64(len(data)), f.tierSource(ctx, resolved), err)
	return err
}

func (f *Facade) Unlink(ctx context.Context, path string) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	start := time.Now()
	resolved := f.resolve(path)
	err := f.be.Unlink(ctx, resolved)
	f.metrics.RecordOperation(metrics.OpUnlink, resolved, time.Since(start), 0, metrics.TierNone, err)
	return err
}

func (f *Facade) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := f.guardWrite(oldPath); err != nil {
		return err
	}
	return f.be.Rename(ctx, f.resolve(oldPath), f.resolve(newPath))
}

func (f *Facade) CopyFile(ctx context.Context, src, dest string, flags backend.CopyFlags) error {
	if err := f.guardWrite(dest); err != nil {
		return err
	}
	return f.be.CopyFile(ctx, f.resolve(src), f.resolve(dest), flags)
}

func (f *Facade) Mkdir(ctx context.Context, path string, opts backend.MkdirOptions) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	if opts.Mode == 0 {
		opts.Mode = f.cfg.Mode()
	}
	if f.cfg.Recursive() {
		opts.Recursive = true
	}
	start := time.Now()
	resolved := f.resolve(path)
	err := f.be.Mkdir(ctx, resolved, opts)
	f.metrics.RecordOperation(metrics.OpMkdir, resolved, time.Since(start), 0, metrics.TierNone, err)
	return err
}

func (f *Facade) Rmdir(ctx context.Context, path string, opts backend.RmdirOptions) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	start := time.Now()
	resolved := f.resolve(path)
	err := f.be.Rmdir(ctx, resolved, opts)
	f.metrics.RecordOperation(metrics.OpRmdir, resolved, time.Since(start), 0, metrics.TierNone, err)
	return err
}

func (f *Facade) Readdir(ctx context.Context, path string, opts backend.ReaddirOptions) ([]backend.Dirent, error) {
	start := time.Now()
	resolved := f.resolve(path)
	entries, err := f.be.Readdir(ctx, resolved, opts)
	f.metrics.RecordOperation(metrics.OpReaddir, resolved, time.Since(start), int64(len(entries)), metrics.TierNone, err)
	return entries, err
}

func (f *Facade) Stat(ctx context.Context, path string) (backend.Stats, error) {
	start := time.Now()
	resolved := f.resolve(path)
	stats, err := f.be.Stat(ctx, resolved)
	f.metrics.RecordOperation(metrics.OpStat, resolved, time.Since(start), 0, metrics.TierNone, err)
	return stats, err
}

func (f *Facade) Lstat(ctx context.Context, path string) (backend.Stats, error) {
	return f.be.Lstat(ctx, f.resolve(path))
}

func (f *Facade) Exists(ctx context.Context, path string) bool {
	return f.be.Exists(ctx, f.resolve(path))
}

func (f *Facade) Access(ctx context.Context, path string, mode int) error {
	return f.be.Access(ctx, f.resolve(path), mode)
}

func (f *Facade) Chmod(ctx context.Context, path string, mode uint32) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	return f.be.Chmod(ctx, f.resolve(path), mode)
}

func (f *Facade) Chown(ctx context.Context, path string, uid, gid int) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	return f.be.Chown(ctx, f.resolve(path), uid, gid)
}

func (f *Facade) Utimes(ctx context.Context, path string, atime, mtime int64) error {
	if err := f.guardWrite(path); err != nil {
		return err
	}
	return f.be.Utimes(ctx, f.resolve(path), atime, mtime)
}

func (f *Facade) Symlink(ctx context.Context, target, linkPath string) error {
	if err := f.guardWrite(linkPath); err != nil {
		return err
	}
	return f.be.Symlink(ctx, target, f.resolve(linkPath))
}

func (f *Facade) Link(ctx context.Context, oldPath, newPath string) error {
	if err := f.guardWrite(newPath); err != nil {
		return err
	}
	return f.be.Link(ctx, f.resolve(oldPath), f.resolve(newPath))
}

func (f *Facade) Readlink(ctx context.Context, path string) (string, error) {
	return f.be.Readlink(ctx, f.resolve(path))
}

func (f *Facade) Realpath(ctx context.Context, path string) (string, error) {
	return f.be.Realpath(ctx, f.resolve(path))
}

func (f *Facade) Mkdtemp(ctx context.Context, prefix string) (string, error) {
	if err := f.guardWrite(prefix); err != nil {
		return "", err
	}
	return f.be.Mkdtemp(ctx, f.resolve(prefix))
}

func (f *Facade) Open(ctx context.Context, path string, flags backend.OpenFlags, mode uint32) (backend.FileHandle, error) {
	if flags.Write || flags.Append || flags.Create || flags.Truncate {
		if err := f.guardWrite(path); err != nil {
			return nil, err
		}
	}
	if mode == 0 {
		mode = f.cfg.Mode()
	}
	start := time.Now()
	resolved := f.resolve(path)
	h, err := f.be.Open(ctx, resolved, flags, mode)
	f.metrics.RecordOperation(metrics.OpOpen, resolved, time.Since(start), 0, f.tierSource(ctx, resolved), err)
	return h, err
}

// Glob runs the glob driver rooted at f.cfg.RootPath().
func (f *Facade) Glob(ctx context.Context, opts glob.Options) (glob.Result, error) {
	opts.Cwd = f.resolve(opts.Cwd)
	return glob.Glob(ctx, f.be, opts)
}

// Grep runs the grep driver rooted at f.cfg.RootPath().
func (f *Facade) Grep(ctx context.Context, opts grep.Options) ([]grep.Match, error) {
	opts.Path = f.resolve(opts.Path)
	return grep.Grep(ctx, f.be, opts)
}

// Find runs the find driver rooted at f.cfg.RootPath().
func (f *Facade) Find(ctx context.Context, opts find.Options) (find.Result, error) {
	opts.StartPath = f.resolve(opts.StartPath)
	return find.Find(ctx, f.be, opts)
}

// Contains reports whether path, once resolved, still lies within the
// façade's root — false indicates an escaping "../" sequence.
func (f *Facade) Contains(path string) bool {
	return vpath.WithinRoot(f.cfg.RootPath(), path)
}
