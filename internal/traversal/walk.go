package traversal

import (
	"context"
	"strings"
	"time"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/pkg/errno"
	"github.com/posixfs/posixfs/pkg/fserrors"
	"github.com/posixfs/posixfs/pkg/vpath"
)

type stackItem struct {
	path  string
	depth int
}

// Walk performs one traversal over be starting at opts.StartPath.
func Walk(ctx context.Context, be backend.Backend, opts Options) Result {
	start := time.Now()
	startPath := vpath.Normalise(opts.StartPath)

	var result Result
	visited := make(map[string]bool)
	checkCounter := 0
	progressCounter := 0

	// checkNow polls unconditionally; checkCancel only every
	// CheckInterval-th entry. Directory boundaries use the former, the
	// per-entry loop the latter.
	checkNow := func() error {
		select {
		case <-ctx.Done():
			return fserrors.NewTraversalAborted(startPath)
		default:
		}
		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			return fserrors.NewTraversalTimeout(startPath, opts.Timeout)
		}
		return nil
	}
	checkCancel := func() error {
		checkCounter++
		if checkCounter%CheckInterval != 0 {
			return nil
		}
		return checkNow()
	}

	rootStat, err := be.Lstat(ctx, startPath)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	if rootStat.IsFile() || (rootStat.IsSymlink() && !opts.FollowSymlinks) {
		if opts.MinDepth <= 0 {
			entry := Entry{Path: startPath, Name: vpath.Base(startPath), Type: rootStat.Kind, Depth: 0}
			populateStats(&entry, rootStat, true)
			if opts.Filter == nil || opts.Filter(entry) {
				result.Entries = append(result.Entries, entry)
			}
		}
		result.Visited = 1
		result.Complete = true
		result.Duration = time.Since(start)
		return result
	}

	stack := []stackItem{{startPath, 0}}
	visited[startPath] = true

	for len(stack) > 0 {
		if err := checkNow(); err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if opts.MaxDepth >= 0 && item.depth > opts.MaxDepth {
			continue
		}

		dirents, err := be.Readdir(ctx, item.path, backend.ReaddirOptions{WithFileTypes: true})
		if err != nil {
			if errno.Is(err, errno.EACCES) {
				continue // swallow: skip subtree
			}
			result.Error = &fserrors.TraversalError{Path: item.path, Code: "EIO", Cause: err}
			result.Duration = time.Since(start)
			return result
		}

		for _, d := range dirents {
			result.Visited++
			progressCounter++
			if progressCounter%CheckInterval == 0 && opts.OnProgress != nil {
				opts.OnProgress(result.Visited)
			}

			if err := checkCancel(); err != nil {
				result.Error = err
				result.Duration = time.Since(start)
				return result
			}

			name := d.Name
			childPath := vpath.Join(item.path, name)
			childDepth := item.depth + 1

			// (1) dotfile filter.
			if !opts.IncludeDotFiles && strings.HasPrefix(name, ".") {
				continue
			}

			// (2) prune patterns: matching directories are skipped
			// before any stat.
			if d.Kind == backend.KindDirectory && matchesPrune(opts.PrunePatterns, name) {
				continue
			}

			// (3) type determination: prefer dirent; only stat a
			// symlink when followSymlinks or collectStats is set.
			kind := d.Kind
			var statResult *backend.Stats
			if kind == backend.KindSymlink {
				if opts.FollowSymlinks || opts.CollectStats {
					if st, serr := be.Stat(ctx, childPath); serr == nil {
						statResult = &st
						if opts.FollowSymlinks {
							kind = st.Kind
						}
					}
				}
			} else if opts.CollectStats {
				if st, serr := be.Stat(ctx, childPath); serr == nil {
					statResult = &st
				}
			}

			entry := Entry{Path: childPath, Name: name, Type: kind, Depth: childDepth}
			if statResult != nil {
				populateStats(&entry, *statResult, true)
			}

			// (4) user filter callback on the fully populated entry.
			include := opts.Filter == nil || opts.Filter(entry)

			// (5) minDepth/maxDepth gates collection only; the walk
			// itself is bounded solely by maxDepth.
			if include && childDepth >= opts.MinDepth && (opts.MaxDepth < 0 || childDepth <= opts.MaxDepth) {
				result.Entries = append(result.Entries, entry)
			}

			if kind == backend.KindDirectory && !visited[childPath] {
				visited[childPath] = true
				if opts.MaxDepth < 0 || childDepth <= opts.MaxDepth {
					stack = append(stack, stackItem{childPath, childDepth})
				}
			}
		}
	}

	result.Complete = true
	result.Duration = time.Since(start)
	return result
}

func populateStats(e *Entry, st backend.Stats, collect bool) {
	if !collect {
		return
	}
	size := st.Size
	e.Size = &size
	mtime := st.Mtime.UnixMilli()
	e.MtimeMs = &mtime
	ctime := st.Ctime.UnixMilli()
	e.CtimeMs = &ctime
	atime := st.Atime.UnixMilli()
	e.AtimeMs = &atime
}

// matchesPrune reports whether name exactly matches, or glob-matches (via
// '*'), any of the prune patterns.
func matchesPrune(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if strings.Contains(p, "*") && simpleGlobMatch(p, name) {
			return true
		}
	}
	return false
}

// simpleGlobMatch implements the restricted single-segment "*"-glob prune
// patterns support, distinct from the full pattern compiler used by
// the glob driver.
func simpleGlobMatch(pattern, name string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}
	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(name, part)
		if idx == -1 {
			return false
		}
		name = name[idx+len(part):]
	}
	return strings.HasSuffix(name, parts[len(parts)-1])
}
