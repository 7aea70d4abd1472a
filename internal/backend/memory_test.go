package backend

import (
	"context"
	"testing"

	"github.com/posixfs/posixfs/pkg/errno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWriteReadFile(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/test", MkdirOptions{}))

	n, tier, err := m.WriteFile(ctx, "/test/file.txt", []byte("Hello, World!"), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, "warm", tier)

	data, err := m.ReadFile(ctx, "/test/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(data))
}

func TestMemoryWriteFileMissingParent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, _, err := m.WriteFile(ctx, "/nope/file.txt", []byte("x"), WriteOptions{})
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.ENOENT))
}

func TestMemoryReadFileOnDirectory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/a", MkdirOptions{}))

	_, err := m.ReadFile(ctx, "/a")
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.EISDIR))
}

func TestMemoryTruncateShrinkAndExtend(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/test", MkdirOptions{}))
	_, _, err := m.WriteFile(ctx, "/test/file.txt", []byte("Hello, World!"), WriteOptions{})
	require.NoError(t, err)

	h, err := m.Open(ctx, "/test/file.txt", OpenFlags{Write: true}, 0)
	require.NoError(t, err)
	defer h.Close(ctx)

	// Boundary scenario 1: truncate to 5 then read.
	require.NoError(t, h.Truncate(ctx, 5))
	stat, err := h.Stat(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, stat.Size)

	data, err := m.ReadFile(ctx, "/test/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(data))

	// Boundary scenario 2: truncate to 20 then read.
	require.NoError(t, h.Truncate(ctx, 20))
	data, err = m.ReadFile(ctx, "/test/file.txt")
	require.NoError(t, err)
	assert.Len(t, data, 20)
	assert.Equal(t, "Hello", string(data[:5]))
	for _, b := range data[5:] {
		assert.Zero(t, b)
	}
}

func TestMemoryTruncateNegativeIsEinval(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _, err := m.WriteFile(ctx, "/f", []byte("abc"), WriteOptions{})
	require.NoError(t, err)
	h, err := m.Open(ctx, "/f", OpenFlags{Write: true}, 0)
	require.NoError(t, err)
	defer h.Close(ctx)

	err = h.Truncate(ctx, -1)
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.EINVAL))
}

func TestMemoryTruncateReadOnlyHandleIsEbadf(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _, err := m.WriteFile(ctx, "/f", []byte("abc"), WriteOptions{})
	require.NoError(t, err)
	h, err := m.Open(ctx, "/f", OpenFlags{Read: true}, 0)
	require.NoError(t, err)
	defer h.Close(ctx)

	err = h.Truncate(ctx, 1)
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.EBADF))
}

func TestMemoryCloseIsIdempotentOnlyInFailingTwice(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _, err := m.WriteFile(ctx, "/f", []byte("abc"), WriteOptions{})
	require.NoError(t, err)
	h, err := m.Open(ctx, "/f", OpenFlags{Read: true}, 0)
	require.NoError(t, err)

	require.NoError(t, h.Close(ctx))
	err = h.Close(ctx)
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.EBADF))
}

func TestMemoryRmdirNonEmptyIsEnotempty(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/a", MkdirOptions{}))
	_, _, err := m.WriteFile(ctx, "/a/f", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	err = m.Rmdir(ctx, "/a", RmdirOptions{})
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.ENOTEMPTY))
}

func TestMemoryMkdirExclusiveIsEexist(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/a", MkdirOptions{}))
	err := m.Mkdir(ctx, "/a", MkdirOptions{})
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.EEXIST))
}

func TestMemoryMkdirRecursiveSucceedsOnExisting(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/a/b/c", MkdirOptions{Recursive: true}))
	require.NoError(t, m.Mkdir(ctx, "/a/b/c", MkdirOptions{Recursive: true}))
	assert.True(t, m.Exists(ctx, "/a/b/c"))
}

func TestMemorySymlinkAndReadlink(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _, err := m.WriteFile(ctx, "/target.txt", []byte("hi"), WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Symlink(ctx, "/target.txt", "/link.txt"))

	target, err := m.Readlink(ctx, "/link.txt")
	require.NoError(t, err)
	assert.Equal(t, "/target.txt", target)

	data, err := m.ReadFile(ctx, "/link.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestMemorySymlinkLoopIsEloop(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Symlink(ctx, "/b", "/a"))
	require.NoError(t, m.Symlink(ctx, "/a", "/b"))

	_, err := m.ReadFile(ctx, "/a")
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.ELOOP))
}

func TestMemoryRename(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _, err := m.WriteFile(ctx, "/a.txt", []byte("x"), WriteOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Rename(ctx, "/a.txt", "/b.txt"))
	assert.False(t, m.Exists(ctx, "/a.txt"))
	assert.True(t, m.Exists(ctx, "/b.txt"))
}

func TestMemoryUnlinkDirectoryIsEisdir(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/a", MkdirOptions{}))
	err := m.Unlink(ctx, "/a")
	require.Error(t, err)
	assert.True(t, errno.Is(err, errno.EISDIR))
}

func TestMemoryReaddirIsSortedAndStable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/d", MkdirOptions{}))
	for _, name := range []string{"c", "a", "b"} {
		_, _, err := m.WriteFile(ctx, "/d/"+name, []byte("x"), WriteOptions{})
		require.NoError(t, err)
	}
	entries, err := m.Readdir(ctx, "/d", ReaddirOptions{})
	require.NoError(t, err)
	names := []string{entries[0].Name, entries[1].Name, entries[2].Name}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestMemoryErrorMessageFormat(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.ReadFile(ctx, "/missing")
	require.Error(t, err)
	assert.Equal(t, "ENOENT: no such file or directory, open '/missing'", err.Error())
}
