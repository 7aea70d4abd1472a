// Package find implements the find driver: a predicate over
// traversal entries combining a name glob, a type filter, and size/mtime/
// atime/ctime comparisons. Built directly on internal/traversal's Walk,
// whose Entry already carries the type/size/timestamp fields the
// predicates need, and internal/pattern's global matcher cache for the
// name glob.
package find

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/pattern"
	"github.com/posixfs/posixfs/internal/traversal"
	"github.com/posixfs/posixfs/pkg/fserrors"
)

// Comparison is one of the three predicate operators: greater-than,
// less-than, or equal.
type Comparison byte

const (
	CompareEqual   Comparison = '='
	CompareGreater Comparison = '+'
	CompareLess    Comparison = '-'
)

// SizeExpr is a parsed size predicate ("+N[K|M|G]", "-N[...]", "N[...]").
type SizeExpr struct {
	Cmp   Comparison
	Bytes int64
}

// ParseSize parses a size predicate string.
func ParseSize(s string) (*SizeExpr, error) {
	if s == "" {
		return nil, nil
	}
	cmp := CompareEqual
	rest := s
	switch s[0] {
	case '+':
		cmp = CompareGreater
		rest = s[1:]
	case '-':
		cmp = CompareLess
		rest = s[1:]
	}
	if rest == "" {
		return nil, fmt.Errorf("find: invalid size predicate %q", s)
	}

	mult := int64(1)
	switch rest[len(rest)-1] {
	case 'K', 'k':
		mult = 1024
		rest = rest[:len(rest)-1]
	case 'M', 'm':
		mult = 1024 * 1024
		rest = rest[:len(rest)-1]
	case 'G', 'g':
		mult = 1024 * 1024 * 1024
		rest = rest[:len(rest)-1]
	}

	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("find: invalid size predicate %q: %w", s, err)
	}
	return &SizeExpr{Cmp: cmp, Bytes: n * mult}, nil
}

func (e *SizeExpr) matches(size int64) bool {
	switch e.Cmp {
	case CompareGreater:
		return size > e.Bytes
	case CompareLess:
		return size < e.Bytes
	default:
		return size == e.Bytes
	}
}

// TimeExpr is a parsed mtime/atime/ctime predicate in days
// ("+N", "-N", "N").
type TimeExpr struct {
	Cmp  Comparison
	Days int
}

// ParseTimeExpr parses a time predicate string.
func ParseTimeExpr(s string) (*TimeExpr, error) {
	if s == "" {
		return nil, nil
	}
	cmp := CompareEqual
	rest := s
	switch s[0] {
	case '+':
		cmp = CompareGreater
		rest = s[1:]
	case '-':
		cmp = CompareLess
		rest = s[1:]
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return nil, fmt.Errorf("find: invalid time predicate %q: %w", s, err)
	}
	return &TimeExpr{Cmp: cmp, Days: n}, nil
}

// matches reports whether ageMs (time.Now() - timestamp, in milliseconds)
// satisfies the predicate, expressed in whole days.
func (e *TimeExpr) matches(ageMs int64) bool {
	ageDays := int(ageMs / (1000 * 60 * 60 * 24))
	switch e.Cmp {
	case CompareGreater:
		return ageDays > e.Days
	case CompareLess:
		return ageDays < e.Days
	default:
		return ageDays == e.Days
	}
}

// Options parametrizes a single Find call. The zero value of any
// predicate field means "unconstrained".
type Options struct {
	StartPath       string
	MinDepth        int
	MaxDepth        int // -1 == unbounded
	IncludeDotFiles bool
	FollowSymlinks  bool
	PrunePatterns   []string
	Timeout         time.Duration

	Name  string // glob against the entry's base name
	Type  string // "f" | "d" | "l"
	Size  string // e.g. "+10M", "-1K", "100"
	Mtime string // days, e.g. "+7", "-1", "0"
	Atime string
	Ctime string
}

// Result is the outcome of a Find call.
type Result struct {
	Entries  []traversal.Entry
	Visited  int
	Duration time.Duration
}

// Find evaluates opts' predicate over be's traversal entries starting at
// opts.StartPath.
func Find(ctx context.Context, be backend.Backend, opts Options) (Result, error) {
	sizeExpr, err := ParseSize(opts.Size)
	if err != nil {
		return Result{}, err
	}
	mtimeExpr, err := ParseTimeExpr(opts.Mtime)
	if err != nil {
		return Result{}, err
	}
	atimeExpr, err := ParseTimeExpr(opts.Atime)
	if err != nil {
		return Result{}, err
	}
	ctimeExpr, err := ParseTimeExpr(opts.Ctime)
	if err != nil {
		return Result{}, err
	}

	var nameMatcher *pattern.Compiled
	if opts.Name != "" {
		nameMatcher, err = pattern.Global().Get(opts.Name, pattern.Options{Dot: true})
		if err != nil {
			return Result{}, err
		}
	}

	now := time.Now().UnixMilli()
	filter := func(e traversal.Entry) bool {
		if nameMatcher != nil && !nameMatcher.Match(e.Name) {
			return false
		}
		if opts.Type != "" && !matchesType(opts.Type, e.Type) {
			return false
		}
		if sizeExpr != nil {
			if e.Size == nil || !sizeExpr.matches(*e.Size) {
				return false
			}
		}
		if mtimeExpr != nil {
			if e.MtimeMs == nil || !mtimeExpr.matches(now-*e.MtimeMs) {
				return false
			}
		}
		if atimeExpr != nil {
			if e.AtimeMs == nil || !atimeExpr.matches(now-*e.AtimeMs) {
				return false
			}
		}
		if ctimeExpr != nil {
			if e.CtimeMs == nil || !ctimeExpr.matches(now-*e.CtimeMs) {
				return false
			}
		}
		return true
	}

	collectStats := sizeExpr != nil || mtimeExpr != nil || atimeExpr != nil || ctimeExpr != nil

	walkResult := traversal.Walk(ctx, be, traversal.Options{
		StartPath:       opts.StartPath,
		MinDepth:        opts.MinDepth,
		MaxDepth:        opts.MaxDepth,
		IncludeDotFiles: opts.IncludeDotFiles,
		FollowSymlinks:  opts.FollowSymlinks,
		CollectStats:    collectStats,
		PrunePatterns:   opts.PrunePatterns,
		Filter:          filter,
		Timeout:         opts.Timeout,
	})

	if walkResult.Error != nil {
		return Result{}, translateWalkError(walkResult.Error, opts.StartPath)
	}

	return Result{Entries: walkResult.Entries, Visited: walkResult.Visited, Duration: walkResult.Duration}, nil
}

func matchesType(want string, kind backend.Kind) bool {
	switch strings.ToLower(want) {
	case "f":
		return kind == backend.KindFile
	case "d":
		return kind == backend.KindDirectory
	case "l":
		return kind == backend.KindSymlink
	default:
		return false
	}
}

// translateWalkError re-labels the underlying traversal cancellation
// errors as find's own.
func translateWalkError(err error, startPath string) error {
	switch e := err.(type) {
	case *fserrors.TimeoutError:
		return fserrors.NewFindTimeout(startPath, e.Timeout)
	case *fserrors.AbortedError:
		return fserrors.NewFindAborted(startPath)
	default:
		return err
	}
}
