// Package glob implements the glob driver: pattern-guided directory
// descent over a backend.Backend, built on internal/traversal's backend
// access pattern and internal/pattern's compiled matchers.
package glob

import (
	"time"
)

// Options parametrizes a single Glob call.
type Options struct {
	Patterns        []string
	IgnorePatterns  []string
	Cwd             string
	Dot             bool
	OnlyFiles       bool // default true; set OnlyDirectories to override
	OnlyDirectories bool
	Absolute        bool
	FollowSymlinks  bool
	Deep            int // -1 == unbounded
	Timeout         time.Duration
}

// DefaultOptions returns the standard defaults (onlyFiles=true, deep=-1) for
// the given patterns and working directory.
func DefaultOptions(patterns []string, cwd string) Options {
	return Options{Patterns: patterns, Cwd: cwd, OnlyFiles: true, Deep: -1}
}

// Result is the outcome of a Glob call.
type Result struct {
	Paths    []string
	Duration time.Duration
}
