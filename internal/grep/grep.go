package grep

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/posixfs/posixfs/internal/backend"
	"github.com/posixfs/posixfs/internal/pattern"
	"github.com/posixfs/posixfs/internal/traversal"
	"github.com/posixfs/posixfs/pkg/fserrors"
	"github.com/posixfs/posixfs/pkg/vpath"
)

// binaryCheckSize bounds how much of a file is sampled for binary
// detection.
const binaryCheckSize = 8192

// checkInterval is how often (in lines scanned) timeout/abort are polled.
const checkInterval = 100

// Grep searches files under opts.Path for opts.Pattern.
func Grep(ctx context.Context, be backend.Backend, opts Options) ([]Match, error) {
	start := time.Now()

	re, err := buildRegex(opts)
	if err != nil {
		return nil, err
	}

	root := vpath.Normalise(opts.Path)
	stat, err := be.Lstat(ctx, root)
	if err != nil {
		return nil, err
	}

	files, err := discoverFiles(ctx, be, opts, root, stat)
	if err != nil {
		return nil, err
	}

	var globMatcher *pattern.Compiled
	if opts.FilenameGlob != "" {
		globMatcher, err = pattern.CreateMatcher(opts.FilenameGlob, pattern.Options{})
		if err != nil {
			return nil, err
		}
	}

	lineCounter := 0
	checkCancel := func() error {
		select {
		case <-ctx.Done():
			return fserrors.NewGrepAborted(root)
		default:
		}
		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			return fserrors.NewGrepTimeout(root, opts.Timeout)
		}
		return nil
	}

	var matches []Match
	for _, path := range files {
		if globMatcher != nil {
			rel := strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
			name := vpath.Base(path)
			if !globMatcher.Match(rel) && !globMatcher.Match(name) {
				continue
			}
		}

		data, rerr := be.ReadFile(ctx, path)
		if rerr != nil {
			continue // unreadable files are silently skipped
		}
		if isBinary(data) {
			continue
		}

		fileMatches, err := scanFile(path, string(data), re, opts, &lineCounter, checkCancel)
		if err != nil {
			return nil, err
		}
		matches = append(matches, fileMatches...)
	}

	return matches, nil
}

func discoverFiles(ctx context.Context, be backend.Backend, opts Options, root string, stat backend.Stats) ([]string, error) {
	if stat.IsFile() {
		return []string{root}, nil
	}
	maxDepth := 1
	if opts.Recursive {
		maxDepth = -1
	}
	result := traversal.Walk(ctx, be, traversal.Options{StartPath: root, MaxDepth: maxDepth})
	if result.Error != nil {
		return nil, result.Error
	}
	files := make([]string, 0, len(result.Entries))
	for _, e := range result.Entries {
		if e.Type == backend.KindFile {
			files = append(files, e.Path)
		}
	}
	return files, nil
}

func buildRegex(opts Options) (*regexp.Regexp, error) {
	pat := opts.Pattern
	if !opts.IsRegex {
		pat = regexp.QuoteMeta(pat)
	}
	if opts.WordMatch {
		pat = `\b(?:` + pat + `)\b`
	}
	if opts.IgnoreCase {
		pat = "(?i)" + pat
	}
	return regexp.Compile(pat)
}

// isBinary applies the null-byte/non-printable-ratio heuristic to the
// first binaryCheckSize bytes of data.
func isBinary(data []byte) bool {
	n := len(data)
	if n > binaryCheckSize {
		n = binaryCheckSize
	}
	sample := data[:n]
	if len(sample) == 0 {
		return false
	}
	if bytes.IndexByte(sample, 0) != -1 {
		return true
	}
	nonPrintable := 0
	for _, b := range sample {
		if b < 32 && b != 9 && b != 10 && b != 13 {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}

func scanFile(path, text string, re *regexp.Regexp, opts Options, lineCounter *int, checkCancel func() error) ([]Match, error) {
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	var fileMatches []Match
	before := make([]string, 0, maxInt(opts.Before, 0))
	var pending []int // indices into fileMatches awaiting After context
	count := 0

	for i, line := range lines {
		*lineCounter++
		if *lineCounter%checkInterval == 0 {
			if err := checkCancel(); err != nil {
				return nil, err
			}
		}

		if opts.After > 0 && len(pending) > 0 {
			kept := pending[:0]
			for _, idx := range pending {
				fileMatches[idx].After = append(fileMatches[idx].After, line)
				if len(fileMatches[idx].After) < opts.After {
					kept = append(kept, idx)
				}
			}
			pending = kept
		}

		stop := false
		if opts.Invert {
			if !re.MatchString(line) {
				m := Match{Path: path, Line: i + 1, Column: 1, Text: line}
				if opts.Before > 0 {
					m.Before = append([]string{}, before...)
				}
				fileMatches = append(fileMatches, m)
				if opts.After > 0 {
					pending = append(pending, len(fileMatches)-1)
				}
				count++
				if opts.FilesOnly || (opts.MaxCount > 0 && count >= opts.MaxCount) {
					stop = true
				}
			}
		} else {
			for _, loc := range re.FindAllStringIndex(line, -1) {
				col := utf8.RuneCountInString(line[:loc[0]]) + 1
				m := Match{
					Path:      path,
					Line:      i + 1,
					Column:    col,
					Text:      line,
					MatchText: line[loc[0]:loc[1]],
				}
				if opts.Before > 0 {
					m.Before = append([]string{}, before...)
				}
				fileMatches = append(fileMatches, m)
				if opts.After > 0 {
					pending = append(pending, len(fileMatches)-1)
				}
				count++
				if opts.FilesOnly || (opts.MaxCount > 0 && count >= opts.MaxCount) {
					stop = true
					break
				}
			}
		}

		if opts.Before > 0 {
			before = append(before, line)
			if len(before) > opts.Before {
				before = before[1:]
			}
		}

		if stop {
			break
		}
	}

	return fileMatches, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
