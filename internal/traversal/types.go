// Package traversal implements the depth-bounded, cancellable walk
// shared by the glob, grep and find drivers: dirent-first type
// inference, prune-before-stat, a visited set guarding against symlink
// cycles, and timeout/abort polling at directory boundaries and every
// CheckInterval entries.
package traversal

import (
	"time"

	"github.com/posixfs/posixfs/internal/backend"
)

// CheckInterval is how often (in visited entries) the engine polls for
// cancellation/timeout and fires progress callbacks.
const CheckInterval = 100

// Entry is one traversal result.
type Entry struct {
	Path     string
	Name     string
	Type     backend.Kind
	Depth    int
	Size     *int64
	MtimeMs  *int64
	CtimeMs  *int64
	AtimeMs  *int64
}

// Options parametrizes a single Walk call.
type Options struct {
	StartPath       string
	MinDepth        int // default 0
	MaxDepth        int // -1 == unbounded
	IncludeDotFiles bool
	FollowSymlinks  bool
	CollectStats    bool
	PrunePatterns   []string
	Filter          func(Entry) bool
	Timeout         time.Duration
	OnProgress      func(visited int)
}

// Result is the outcome of a Walk call.
type Result struct {
	Entries  []Entry
	Visited  int
	Complete bool
	Error    error
	Duration time.Duration
}
