package memory

import (
	"context"
	"testing"

	"github.com/posixfs/posixfs/pkg/errno"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Put(ctx, "a/b", []byte("hello world"), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, err := s.Get(ctx, "a/b")
	if err != nil || string(data) != "hello world" {
		t.Fatalf("Get = (%q, %v)", data, err)
	}
}

func TestGetMissingIsENOENT(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "missing")
	if !errno.Is(err, errno.ENOENT) {
		t.Fatalf("expected ENOENT, got %v", err)
	}
}

func TestGetRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, "k", []byte("0123456789"), nil)

	data, err := s.GetRange(ctx, "k", 2, 3)
	if err != nil || string(data) != "234" {
		t.Fatalf("GetRange = (%q, %v)", data, err)
	}

	data, err = s.GetRange(ctx, "k", 8, 0)
	if err != nil || string(data) != "89" {
		t.Fatalf("GetRange to end = (%q, %v)", data, err)
	}
}

func TestDeleteIsNoOpOnMissing(t *testing.T) {
	s := New()
	if err := s.Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("Delete on missing key should be a no-op, got %v", err)
	}
}

func TestHeadAndExists(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, "k", []byte("abc"), nil)

	ok, err := s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v)", ok, err)
	}

	info, err := s.Head(ctx, "k")
	if err != nil || info.Size != 3 {
		t.Fatalf("Head = (%+v, %v)", info, err)
	}
}

func TestListByPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.Put(ctx, "page/1", []byte("a"), nil)
	_ = s.Put(ctx, "page/2", []byte("b"), nil)
	_ = s.Put(ctx, "other/1", []byte("c"), nil)

	objs, err := s.List(ctx, "page/", 0)
	if err != nil || len(objs) != 2 {
		t.Fatalf("List = (%v, %v)", objs, err)
	}
	if objs[0].Key != "page/1" || objs[1].Key != "page/2" {
		t.Fatalf("List order = %v", objs)
	}
}
