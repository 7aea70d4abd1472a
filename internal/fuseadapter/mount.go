package fuseadapter

import (
	"fmt"
	"log"
	"os"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/posixfs/posixfs/internal/filesystem"
)

// MountOptions holds the knobs this adapter forwards to go-fuse.
type MountOptions struct {
	AllowOther   bool
	ReadOnly     bool
	Debug        bool
	FSName       string
	Subtype      string
	MaxReadAhead uint32
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
}

// DefaultMountOptions returns the standard mount parameters (fsname,
// subtype, one-second attr/entry caching).
func DefaultMountOptions() MountOptions {
	return MountOptions{
		FSName:       "posixfs",
		Subtype:      "posix",
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
	}
}

// MountManager owns the lifecycle of a single FUSE mount: Mount/Unmount
// wrapping fs.Mount and fuse.Server, with a background Wait() goroutine.
type MountManager struct {
	fsys       *FileSystem
	mountPoint string
	opts       MountOptions
	server     *fuse.Server
	mounted    bool
}

// NewMountManager builds a manager over facade, mounting at mountPoint.
func NewMountManager(facade *filesystem.Facade, mountPoint string, opts MountOptions) *MountManager {
	fsys := New(facade, uint32(os.Getuid()), uint32(os.Getgid()))
	return &MountManager{fsys: fsys, mountPoint: mountPoint, opts: opts}
}

func (m *MountManager) Mount() error {
	if m.mounted {
		return fmt.Errorf("fuseadapter: already mounted at %s", m.mountPoint)
	}
	fuseOpts := &gofuse.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: m.opts.AllowOther,
			Debug:      m.opts.Debug,
			FsName:     m.opts.FSName,
			Name:       m.opts.Subtype,
		},
		AttrTimeout:  &m.opts.AttrTimeout,
		EntryTimeout: &m.opts.EntryTimeout,
	}
	fuseOpts.MaxReadAhead = int(m.opts.MaxReadAhead)
	if m.opts.ReadOnly {
		fuseOpts.Options = append(fuseOpts.Options, "ro")
	}
	server, err := gofuse.Mount(m.mountPoint, m.fsys.Root(), fuseOpts)
	if err != nil {
		return fmt.Errorf("fuseadapter: mount %s: %w", m.mountPoint, err)
	}
	m.server = server
	m.mounted = true

	go func() {
		m.server.Wait()
		m.mounted = false
	}()
	log.Printf("posixfs mounted at %s", m.mountPoint)
	return nil
}

func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return fmt.Errorf("fuseadapter: not mounted at %s", m.mountPoint)
	}
	return m.server.Unmount()
}

func (m *MountManager) Mounted() bool { return m.mounted }
