//go:build integration

// Package integration exercises internal/filesystem.Facade end to end over
// the in-memory backend: the driver chain (Glob/Grep/Find) layered on real
// writes and directory structure, plus a throughput baseline over the
// façade itself rather than a sleep-loop stand-in.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/config"
	"github.com/posixfs/posixfs/internal/filesystem"
	"github.com/posixfs/posixfs/internal/find"
	"github.com/posixfs/posixfs/internal/glob"
	"github.com/posixfs/posixfs/internal/grep"
)

func newIntegrationFacade(t *testing.T) *filesystem.Facade {
	t.Helper()
	cfg, err := config.NewFacadeConfig("/root", false, "utf8", 0o644, 0, true)
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

// TestFacadeLifecycle walks the façade through the basic POSIX operation
// set: mkdir, write, read, stat, rename, unlink.
func TestFacadeLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	f := newIntegrationFacade(t)

	if err := f.Mkdir(ctx, "data", backend.MkdirOptions{Mode: 0o755}); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	n, _, err := f.WriteFile(ctx, "data/hello.txt", []byte("hello world"), backend.WriteOptions{Flag: "w"})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if n != len("hello world") {
		t.Fatalf("WriteFile wrote %d bytes, want %d", n, len("hello world"))
	}

	got, err := f.ReadFile(ctx, "data/hello.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("ReadFile = %q, want %q", got, "hello world")
	}

	st, err := f.Stat(ctx, "data/hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Size != int64(len("hello world")) {
		t.Fatalf("Stat.Size = %d, want %d", st.Size, len("hello world"))
	}

	if err := f.Rename(ctx, "data/hello.txt", "data/renamed.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if f.Exists(ctx, "data/hello.txt") {
		t.Fatal("old path still exists after rename")
	}
	if !f.Exists(ctx, "data/renamed.txt") {
		t.Fatal("renamed path does not exist")
	}

	if err := f.Unlink(ctx, "data/renamed.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if f.Exists(ctx, "data/renamed.txt") {
		t.Fatal("path still exists after unlink")
	}
}

// TestFacadeGlobGrepFind seeds a small tree and drives the three search
// drivers through the façade, the way a shell session layered on top of it
// would.
func TestFacadeGlobGrepFind(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	f := newIntegrationFacade(t)

	if err := f.Mkdir(ctx, "src", backend.MkdirOptions{Mode: 0o755}); err != nil {
		t.Fatalf("Mkdir src: %v", err)
	}
	if err := f.Mkdir(ctx, "src/sub", backend.MkdirOptions{Mode: 0o755}); err != nil {
		t.Fatalf("Mkdir src/sub: %v", err)
	}
	files := map[string]string{
		"src/main.go":     "package main\n\nfunc main() {}\n",
		"src/sub/util.go": "package sub\n\nfunc Helper() error { return nil }\n",
		"README.md":       "# posixfs\n",
	}
	for path, contents := range files {
		if _, _, err := f.WriteFile(ctx, path, []byte(contents), backend.WriteOptions{Flag: "w"}); err != nil {
			t.Fatalf("WriteFile(%s): %v", path, err)
		}
	}

	globOpts := glob.DefaultOptions([]string{"**/*.go"}, "")
	globResult, err := f.Glob(ctx, globOpts)
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(globResult.Paths) != 2 {
		t.Fatalf("Glob matched %d paths, want 2: %v", len(globResult.Paths), globResult.Paths)
	}

	grepOpts := grep.Options{
		Pattern:      "func ",
		Path:         "",
		Recursive:    true,
		FilenameGlob: "*.go",
	}
	matches, err := f.Grep(ctx, grepOpts)
	if err != nil {
		t.Fatalf("Grep: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Grep matched %d lines, want 2: %+v", len(matches), matches)
	}

	findOpts := find.Options{StartPath: "", Name: "*.md", MaxDepth: -1}
	findResult, err := f.Find(ctx, findOpts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(findResult.Entries) != 1 || findResult.Entries[0].Name != "README.md" {
		t.Fatalf("Find = %+v, want single README.md entry", findResult.Entries)
	}
}

// TestFacadeThroughputBaseline establishes a rough write/read throughput
// floor against the in-memory backend, replacing a sleep-loop stand-in
// with actual façade calls.
func TestFacadeThroughputBaseline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	f := newIntegrationFacade(t)

	const operations = 1000
	payload := []byte("0123456789abcdef")

	start := time.Now()
	for i := 0; i < operations; i++ {
		path := fmt.Sprintf("bench-%d.bin", i)
		if _, _, err := f.WriteFile(ctx, path, payload, backend.WriteOptions{Flag: "w"}); err != nil {
			t.Fatalf("WriteFile(%s): %v", path, err)
		}
		if _, err := f.ReadFile(ctx, path); err != nil {
			t.Fatalf("ReadFile(%s): %v", path, err)
		}
	}
	duration := time.Since(start)
	opsPerSecond := float64(operations*2) / duration.Seconds()
	t.Logf("in-memory write+read throughput: %.0f ops/sec over %v", opsPerSecond, duration)

	const minOpsPerSecond = 5000.0
	if opsPerSecond < minOpsPerSecond {
		t.Errorf("throughput %.0f ops/sec below floor %.0f ops/sec", opsPerSecond, minOpsPerSecond)
	}
}
