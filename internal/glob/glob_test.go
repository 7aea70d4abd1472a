package glob

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
	require.NoError(t, m.Mkdir(ctx, "/src/a/b", backend.MkdirOptions{Recursive: true}))
	write := func(path, content string) {
		_, _, err := m.WriteFile(ctx, path, []byte(content), backend.WriteOptions{})
		require.NoError(t, err)
	}
	write("/src/index.ts", "x")
	write("/src/a/main.ts", "x")
	write("/src/a/b/deep.ts", "x")
	write("/src/a/b/deep.js", "x")
	write("/src/.hidden.ts", "x")
	require.NoError(t, m.Mkdir(ctx, "/node_modules/pkg", backend.MkdirOptions{Recursive: true}))
	write("/node_modules/pkg/index.ts", "x")
	return m
}

func TestGlobGlobstarMatchesArbitraryDepth(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/**/*.ts"}, "/")
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Contains(t, result.Paths, "src/index.ts")
	assert.Contains(t, result.Paths, "src/a/main.ts")
	assert.Contains(t, result.Paths, "src/a/b/deep.ts")
	assert.NotContains(t, result.Paths, "src/a/b/deep.js")
}

func TestGlobLiteralPrefixPruning(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/a/*.ts"}, "/")
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a/main.ts"}, result.Paths)
}

func TestGlobWildcardSegmentDescends(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/*/b/*.js"}, "/")
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a/b/deep.js"}, result.Paths)
}

func TestGlobDotfilesExcludedByDefault(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/*.ts"}, "/")
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	assert.NotContains(t, result.Paths, "src/.hidden.ts")
}

func TestGlobIgnorePatterns(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"**/*.ts"}, "/")
	opts.IgnorePatterns = []string{"node_modules/**"}
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	for _, p := range result.Paths {
		assert.NotContains(t, p, "node_modules")
	}
}

func TestGlobAbsolutePaths(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/a/*.ts"}, "/")
	opts.Absolute = true
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"/src/a/main.ts"}, result.Paths)
}

func TestGlobOnlyDirectories(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/*"}, "/")
	opts.OnlyFiles = false
	opts.OnlyDirectories = true
	result, err := Glob(context.Background(), m, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a"}, result.Paths)
}

func TestGlobMissingCwdIsError(t *testing.T) {
	m := backend.NewMemory()
	_, err := Glob(context.Background(), m, DefaultOptions([]string{"*"}, "/missing"))
	require.Error(t, err)
}

func TestGlobStreamDeliversMatches(t *testing.T) {
	m := buildTree(t)
	opts := DefaultOptions([]string{"src/**/*.ts"}, "/")
	out, errc := Stream(context.Background(), m, opts)
	var got []string
	for p := range out {
		got = append(got, p)
	}
	require.NoError(t, <-errc)
	assert.Contains(t, got, "src/index.ts")
	assert.Contains(t, got, "src/a/b/deep.ts")
}
