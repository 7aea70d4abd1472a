package glob

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/pattern"
	"github.com/posixfs/posixfs/pkg/errno"
	"github.com/posixfs/posixfs/pkg/fserrors"
	"github.com/posixfs/posixfs/pkg/vpath"
)

const checkInterval = 100

type stackItem struct {
	path  string // absolute
	rel   []string
	depth int
}

// Glob evaluates opts.Patterns against be, starting at opts.Cwd,
// returning a sorted, deduplicated result.
func Glob(ctx context.Context, be backend.Backend, opts Options) (Result, error) {
	start := time.Now()
	var matches []string
	err := walkMatches(ctx, be, opts, func(path string) bool {
		matches = append(matches, path)
		return true
	})
	if err != nil {
		return Result{}, err
	}
	sort.Strings(matches)
	return Result{Paths: matches, Duration: time.Since(start)}, nil
}

// walkMatches performs the single pattern-guided descent shared by Glob
// (which sorts the accumulated result) and Stream (which forwards matches
// to sink as soon as they are found, unsorted). sink returning false stops
// the walk early.
func walkMatches(ctx context.Context, be backend.Backend, opts Options, sink func(path string) bool) error {
	start := time.Now()
	cwd := vpath.Normalise(opts.Cwd)

	if _, err := be.Lstat(ctx, cwd); err != nil {
		return err
	}

	matchers := make([]*pattern.Compiled, 0, len(opts.Patterns))
	for _, p := range opts.Patterns {
		c, err := pattern.CreateMatcher(p, pattern.Options{Dot: opts.Dot})
		if err != nil {
			return err
		}
		matchers = append(matchers, c)
	}

	ignoreMatchers := make([]*pattern.Compiled, 0, len(opts.IgnorePatterns))
	for _, p := range opts.IgnorePatterns {
		c, err := pattern.CreateMatcher(p, pattern.Options{Dot: true})
		if err != nil {
			return err
		}
		ignoreMatchers = append(ignoreMatchers, c)
	}

	onlyFiles := opts.OnlyFiles && !opts.OnlyDirectories
	seen := make(map[string]bool)

	checkCounter := 0
	checkCancel := func() error {
		checkCounter++
		if checkCounter%checkInterval != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fserrors.NewGlobAborted(strings.Join(opts.Patterns, ","))
		default:
		}
		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			return fserrors.NewGlobTimeout(strings.Join(opts.Patterns, ","), opts.Timeout)
		}
		return nil
	}

	stack := []stackItem{{path: cwd, rel: nil, depth: 0}}

	for len(stack) > 0 {
		if err := checkCancel(); err != nil {
			return err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dirents, err := be.Readdir(ctx, item.path, backend.ReaddirOptions{WithFileTypes: true})
		if err != nil {
			if errno.Is(err, errno.EACCES) {
				continue
			}
			return err
		}

		for _, d := range dirents {
			if err := checkCancel(); err != nil {
				return err
			}

			name := d.Name
			childRel := append(append([]string{}, item.rel...), name)
			childPath := vpath.Join(item.path, name)
			relPath := strings.Join(childRel, "/")

			targetsDot := opts.Dot || anyExplicitlyTargetsDot(matchers)
			if !targetsDot && strings.HasPrefix(name, ".") {
				continue
			}

			kind := d.Kind
			isSymlinkNoFollow := kind == backend.KindSymlink && !opts.FollowSymlinks

			matchedPattern := false
			for _, m := range matchers {
				if m.Match(relPath) {
					matchedPattern = true
					break
				}
			}

			ignored := false
			if matchedPattern {
				for _, m := range ignoreMatchers {
					if m.Match(relPath) {
						ignored = true
						break
					}
				}
			}

			if matchedPattern && !ignored {
				typeOK := true
				if opts.OnlyDirectories {
					typeOK = kind == backend.KindDirectory
				} else if onlyFiles {
					typeOK = kind == backend.KindFile || isSymlinkNoFollow
				}
				if typeOK {
					out := relPath
					if opts.Absolute {
						out = childPath
					}
					if !seen[out] {
						seen[out] = true
						if !sink(out) {
							return nil
						}
					}
				}
			}

			if kind == backend.KindDirectory && !isSymlinkNoFollow {
				childDepth := item.depth + 1
				if opts.Deep >= 0 && childDepth > opts.Deep {
					continue
				}
				if couldContainMatches(childRel, matchers) {
					stack = append(stack, stackItem{path: childPath, rel: childRel, depth: childDepth})
				}
			}
		}
	}

	return nil
}

// couldContainMatches decides whether a directory at relDir is worth
// descending into, given the compiled patterns.
func couldContainMatches(relDir []string, matchers []*pattern.Compiled) bool {
	for _, m := range matchers {
		if m.HasGlobstar() {
			prefix := m.LiteralPrefix()
			if len(prefix) == 0 {
				return true
			}
			if isAncestorDescendantOrEqual(relDir, prefix) {
				return true
			}
			continue
		}
		if m.HasBraceAlternatives() {
			synthetic := strings.Join(relDir, "/") + "/__glob_probe__"
			if m.Match(synthetic) {
				return true
			}
			continue
		}
		_, max := m.SegmentBounds()
		if max >= 0 && len(relDir) >= max {
			continue
		}
		// Beyond the literal prefix a wildcard segment can still accept
		// this directory, so test the segment vector itself rather than
		// just the prefix chain.
		if m.CouldMatchWithin(relDir) {
			return true
		}
	}
	return false
}

func isAncestorDescendantOrEqual(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func anyExplicitlyTargetsDot(matchers []*pattern.Compiled) bool {
	for _, m := range matchers {
		if m.Dot {
			return true
		}
	}
	return false
}

