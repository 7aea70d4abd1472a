package page

import (
	"bytes"
	"context"
	"testing"

	"github.com/posixfs/posixfs/pkg/errno"
)

type memAccessor struct {
	pages map[string][]byte
}

func newMemAccessor() *memAccessor { return &memAccessor{pages: make(map[string][]byte)} }

func (m *memAccessor) AccessPage(_ context.Context, pageID string) ([]byte, error) {
	data, ok := m.pages[pageID]
	if !ok {
		return nil, errno.New(errno.ENOENT).WithSyscall("read").WithPath(pageID)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memAccessor) WritePage(_ context.Context, pageID string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.pages[pageID] = buf
	return nil
}

func (m *memAccessor) DeletePage(_ context.Context, pageID string) error {
	delete(m.pages, pageID)
	return nil
}

func TestCountInvariant(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{{0, 0}, {1, 1}, {Size, 1}, {Size + 1, 2}, {2 * Size, 2}}
	for _, c := range cases {
		if got := Count(c.size); got != c.want {
			t.Fatalf("Count(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemAccessor())

	data := bytes.Repeat([]byte("x"), int(Size)+100)
	if err := store.WriteAll(ctx, "blob1", data); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	got, err := store.ReadAll(ctx, "blob1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}

	size, ok := store.Size("blob1")
	if !ok || size != int64(len(data)) {
		t.Fatalf("Size = (%d, %v), want %d", size, ok, len(data))
	}
}

func TestReadRangeSpansPages(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemAccessor())

	data := make([]byte, 2*Size+10)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := store.WriteAll(ctx, "blob1", data); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	got, err := store.ReadRange(ctx, "blob1", Size-5, 20)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	want := data[Size-5 : Size-5+20]
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadRange mismatch")
	}
}

func TestReadPastEOFIsRangeError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemAccessor())
	_ = store.WriteAll(ctx, "blob1", []byte("hello"))

	_, err := store.ReadRange(ctx, "blob1", 0, 100)
	if err == nil || err.Error() != "range out of bounds" {
		t.Fatalf("expected 'range out of bounds', got %v", err)
	}
}

func TestEmptyWriteLeavesZeroPagesAndZeroSize(t *testing.T) {
	ctx := context.Background()
	accessor := newMemAccessor()
	store := NewStore(accessor)

	if err := store.WriteAll(ctx, "blob1", []byte{}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	size, ok := store.Size("blob1")
	if !ok || size != 0 {
		t.Fatalf("Size = (%d, %v), want (0, true)", size, ok)
	}
	if len(accessor.pages) != 0 {
		t.Fatalf("expected zero pages written, got %d", len(accessor.pages))
	}
}

func TestWriteAllShrinksAndDeletesTrailingPages(t *testing.T) {
	ctx := context.Background()
	accessor := newMemAccessor()
	store := NewStore(accessor)

	big := make([]byte, 3*Size)
	_ = store.WriteAll(ctx, "blob1", big)
	if len(accessor.pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(accessor.pages))
	}

	small := []byte("tiny")
	_ = store.WriteAll(ctx, "blob1", small)
	if len(accessor.pages) != 1 {
		t.Fatalf("expected shrink to delete trailing pages, got %d pages", len(accessor.pages))
	}
}

func TestUpdateRangeMutatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemAccessor())

	data := bytes.Repeat([]byte("a"), 100)
	_ = store.WriteAll(ctx, "blob1", data)

	if err := store.UpdateRange(ctx, "blob1", 10, []byte("BBBB")); err != nil {
		t.Fatalf("UpdateRange: %v", err)
	}

	got, err := store.ReadAll(ctx, "blob1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := append(append(bytes.Repeat([]byte("a"), 10), []byte("BBBB")...), bytes.Repeat([]byte("a"), 86)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("UpdateRange mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestUpdateRangeExtendsBlob(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemAccessor())

	_ = store.WriteAll(ctx, "blob1", []byte("hi"))
	if err := store.UpdateRange(ctx, "blob1", 10, []byte("end")); err != nil {
		t.Fatalf("UpdateRange: %v", err)
	}

	size, _ := store.Size("blob1")
	if size != 13 {
		t.Fatalf("Size = %d, want 13", size)
	}
	got, err := store.ReadAll(ctx, "blob1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got[10:13]) != "end" {
		t.Fatalf("got = %q", got)
	}
}

func TestUpdateRangePastEOFZeroFillsGapPages(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemAccessor())

	_ = store.WriteAll(ctx, "blob1", []byte("hi"))
	off := Size + 5
	if err := store.UpdateRange(ctx, "blob1", off, []byte("tail")); err != nil {
		t.Fatalf("UpdateRange: %v", err)
	}

	got, err := store.ReadAll(ctx, "blob1")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if int64(len(got)) != off+4 {
		t.Fatalf("len = %d, want %d", len(got), off+4)
	}
	if string(got[:2]) != "hi" {
		t.Fatalf("prefix = %q, want \"hi\"", got[:2])
	}
	for i := int64(2); i < off; i++ {
		if got[i] != 0 {
			t.Fatalf("gap byte %d = %d, want 0", i, got[i])
		}
	}
	if string(got[off:]) != "tail" {
		t.Fatalf("suffix = %q, want \"tail\"", got[off:])
	}
}

func TestDeleteRemovesAllPages(t *testing.T) {
	ctx := context.Background()
	accessor := newMemAccessor()
	store := NewStore(accessor)

	_ = store.WriteAll(ctx, "blob1", make([]byte, 2*Size))
	if err := store.Delete(ctx, "blob1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(accessor.pages) != 0 {
		t.Fatalf("expected all pages removed, got %d", len(accessor.pages))
	}
	if _, ok := store.Size("blob1"); ok {
		t.Fatalf("expected size cache entry to be forgotten")
	}
}
