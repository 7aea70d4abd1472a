package traversal

import (
	"context"
	"testing"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTree(t *testing.T) *backend.Memory {
	t.Helper()
	ctx := context.Background()
	m := backend.NewMemory()
	require.NoError(t, m.Mkdir(ctx, "/a/b", backend.MkdirOptions{Recursive: true}))
	_, _, err := m.WriteFile(ctx, "/a/b/c.txt", []byte("hello"), backend.WriteOptions{})
	require.NoError(t, err)
	_, _, err = m.WriteFile(ctx, "/a/.hidden", []byte("x"), backend.WriteOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Mkdir(ctx, "/node_modules", backend.MkdirOptions{}))
	_, _, err = m.WriteFile(ctx, "/node_modules/pkg.json", []byte("{}"), backend.WriteOptions{})
	require.NoError(t, err)
	return m
}

func TestWalkVisitsAllEntriesUnderRoot(t *testing.T) {
	m := buildTree(t)
	result := Walk(context.Background(), m, Options{StartPath: "/", MaxDepth: -1})
	require.NoError(t, result.Error)
	assert.True(t, result.Complete)
	assert.GreaterOrEqual(t, result.Visited, len(result.Entries))
	for _, e := range result.Entries {
		assert.True(t, e.Path == "/" || e.Path[0] == '/')
	}
}

func TestWalkDotfileFilter(t *testing.T) {
	m := buildTree(t)
	result := Walk(context.Background(), m, Options{StartPath: "/a", MaxDepth: -1, IncludeDotFiles: false})
	require.NoError(t, result.Error)
	for _, e := range result.Entries {
		assert.NotEqual(t, ".hidden", e.Name)
	}
}

func TestWalkPrunePatterns(t *testing.T) {
	m := buildTree(t)
	result := Walk(context.Background(), m, Options{StartPath: "/", MaxDepth: -1, PrunePatterns: []string{"node_modules"}})
	require.NoError(t, result.Error)
	for _, e := range result.Entries {
		assert.NotContains(t, e.Path, "node_modules")
	}
}

func TestWalkSingleFileStart(t *testing.T) {
	m := buildTree(t)
	result := Walk(context.Background(), m, Options{StartPath: "/a/b/c.txt"})
	require.NoError(t, result.Error)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "/a/b/c.txt", result.Entries[0].Path)
	assert.Equal(t, 0, result.Entries[0].Depth)
}

func TestWalkMinMaxDepth(t *testing.T) {
	m := buildTree(t)
	result := Walk(context.Background(), m, Options{StartPath: "/", MinDepth: 2, MaxDepth: 2})
	require.NoError(t, result.Error)
	for _, e := range result.Entries {
		assert.Equal(t, 2, e.Depth)
	}
}

func TestWalkMissingStartIsError(t *testing.T) {
	m := backend.NewMemory()
	result := Walk(context.Background(), m, Options{StartPath: "/missing"})
	require.Error(t, result.Error)
	assert.False(t, result.Complete)
}
