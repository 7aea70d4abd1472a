package filesystem

import (
	"context"
	"testing"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/config"
	"github.com/posixfs/posixfs/internal/glob"
	"github.com/posixfs/posixfs/internal/metrics"
)

func newFacade(t *testing.T, readOnly bool) *Facade {
	t.Helper()
	cfg, err := config.NewFacadeConfig("/root", readOnly, "utf8", 0o644, 0, false)
	if err != nil {
		t.Fatalf("NewFacadeConfig: %v", err)
	}
	be := backend.NewMemory()
	ctx := context.Background()
	if err := be.Mkdir(ctx, "/root", backend.MkdirOptions{Mode: 0o755}); err != nil {
		t.Fatalf("setup mkdir: %v", err)
	}
	return New(cfg, be)
}

func TestFacadeWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFacade(t, false)

	if _, _, err := f.WriteFile(ctx, "hello.txt", []byte("hi"), backend.WriteOptions{Flag: "w"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := f.ReadFile(ctx, "hello.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("got %q, want %q", data, "hi")
	}
}

func TestFacadeReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	f := newFacade(t, true)

	if _, _, err := f.WriteFile(ctx, "x.txt", []byte("x"), backend.WriteOptions{Flag: "w"}); err == nil {
		t.Fatalf("expected EROFS on a read-only façade")
	}
	if err := f.Mkdir(ctx, "sub", backend.MkdirOptions{}); err == nil {
		t.Fatalf("expected EROFS on Mkdir against a read-only façade")
	}
}

func TestFacadeResolvesUnderRoot(t *testing.T) {
	ctx := context.Background()
	f := newFacade(t, false)

	if _, _, err := f.WriteFile(ctx, "a.txt", []byte("a"), backend.WriteOptions{Flag: "w"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !f.Exists(ctx, "a.txt") {
		t.Fatalf("expected a.txt to exist via the façade")
	}
	stat, err := f.Stat(ctx, "a.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !stat.IsFile() {
		t.Fatalf("expected a regular file")
	}
}

func TestFacadeGlobRootsUnderCwd(t *testing.T) {
	ctx := context.Background()
	f := newFacade(t, false)

	if _, _, err := f.WriteFile(ctx, "one.txt", []byte("x"), backend.WriteOptions{Flag: "w"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := f.WriteFile(ctx, "two.log", []byte("x"), backend.WriteOptions{Flag: "w"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := f.Glob(ctx, glob.DefaultOptions([]string{"*.txt"}, ""))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(result.Paths) != 1 {
		t.Fatalf("expected 1 glob match, got %+v", result.Paths)
	}
}

func TestFacadeContainsDetectsEscape(t *testing.T) {
	f := newFacade(t, false)
	if f.Contains("../../etc/passwd") {
		t.Fatalf("expected an escaping path to be rejected")
	}
	if !f.Contains("sub/file.txt") {
		t.Fatalf("expected a normal relative path to be contained")
	}
}

func TestFacadeRecordsOperationMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFacade(t, false)

	if _, _, err := f.WriteFile(ctx, "metered.txt", []byte("hello"), backend.WriteOptions{Flag: "w"}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := f.ReadFile(ctx, "metered.txt"); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if _, err := f.ReadFile(ctx, "nope.txt"); err == nil {
		t.Fatal("expected ReadFile of a missing path to fail")
	}

	writeMetrics := f.Metrics().GetOperationMetrics(metrics.OpWrite)
	if writeMetrics == nil || writeMetrics.Count != 1 {
		t.Fatalf("expected 1 recorded write, got %+v", writeMetrics)
	}

	readMetrics := f.Metrics().GetOperationMetrics(metrics.OpRead)
	if readMetrics == nil || readMetrics.Count != 2 {
		t.Fatalf("expected 2 recorded reads, got %+v", readMetrics)
	}
	if readMetrics.ErrorCount != 1 {
		t.Fatalf("expected 1 recorded read error, got %d", readMetrics.ErrorCount)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []config.Encoding{config.EncodingUTF8, config.EncodingBase64, config.EncodingHex}
	for _, enc := range cases {
		text, err := DecodeString([]byte("hello"), enc)
		if err != nil {
			t.Fatalf("DecodeString(%s): %v", enc, err)
		}
		got, err := EncodeString(text, enc)
		if err != nil {
			t.Fatalf("EncodeString(%s): %v", enc, err)
		}
		if string(got) != "hello" {
			t.Fatalf("round trip mismatch for %s: %q", enc, got)
		}
	}
}
