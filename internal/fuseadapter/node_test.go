package fuseadapter

import (
	"context"
	"testing"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/config"
	"github.com/posixfs/posixfs/internal/filesystem"
)

func newTestFacade(t *testing.T) *filesystem.Facade {
	t.Helper()
	cfg, err := config.NewFacadeConfig("/root", false, "utf8", 0o644, 0, false)
	if err != nil {
		t.Fatalf("NewFacadeConfig: %v", err)
	}
	be := backend.NewMemory()
	ctx := context.Background()
	if err := be.Mkdir(ctx, "/root", backend.MkdirOptions{Mode: 0o755}); err != nil {
		t.Fatalf("setup mkdir: %v", err)
	}
	return filesystem.New(cfg, be)
}

func TestDirectoryNodeLookupAndReaddir(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t)
	if _, _, err := facade.WriteFile(ctx, "a.txt", []byte("hello"), backend.WriteOptions{Flag: "w"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := facade.Mkdir(ctx, "sub", backend.MkdirOptions{Mode: 0o755}); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	fsys := New(facade, 1000, 1000)
	root := &DirectoryNode{fsys: fsys, path: "/"}

	dirents, err := fsys.facade.Readdir(ctx, root.path, backend.ReaddirOptions{WithFileTypes: true})
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	names := map[string]backend.Kind{}
	for _, d := range dirents {
		names[d.Name] = d.Kind
	}
	if names["a.txt"] != backend.KindFile {
		t.Fatalf("expected a.txt to be a file, got %v", names["a.txt"])
	}
	if names["sub"] != backend.KindDirectory {
		t.Fatalf("expected sub to be a directory, got %v", names["sub"])
	}
}

func TestToErrnoMapsEnoent(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t)
	_, err := facade.Stat(ctx, "missing.txt")
	if err == nil {
		t.Fatalf("expected ENOENT for missing file")
	}
	if got := toErrno(err); got != 2 {
		t.Fatalf("toErrno(ENOENT) = %v, want syscall.ENOENT (2)", got)
	}
}

func TestOpenFlagsFromSyscall(t *testing.T) {
	of := openFlagsFromSyscall(0) // O_RDONLY
	if !of.Read || of.Write {
		t.Fatalf("O_RDONLY should set Read only, got %+v", of)
	}
}
