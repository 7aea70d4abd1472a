package pattern

// CompiledPatterns compiles a batch of patterns once and matches a path
// against all of them, short-circuiting on the first hit.
type CompiledPatterns struct {
	patterns []*Compiled
}

// NewCompiledPatterns compiles every raw pattern under a shared cache,
// returning the first compile error encountered (if any).
func NewCompiledPatterns(cache *Cache, patterns []string, opts Options) (*CompiledPatterns, error) {
	cp := &CompiledPatterns{patterns: make([]*Compiled, 0, len(patterns))}
	for _, p := range patterns {
		c, err := cache.Get(p, opts)
		if err != nil {
			return nil, err
		}
		cp.patterns = append(cp.patterns, c)
	}
	return cp, nil
}

// MatchAll reports whether path matches any compiled pattern in the batch.
func (cp *CompiledPatterns) MatchAll(path string) bool {
	for _, p := range cp.patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// MatchFirst returns the index of the first pattern that matches path, or
// -1 if none does (the glob driver's "first pattern hit wins" rule).
func (cp *CompiledPatterns) MatchFirst(path string) int {
	for i, p := range cp.patterns {
		if p.Match(path) {
			return i
		}
	}
	return -1
}

// Patterns exposes the underlying compiled patterns, e.g. for per-pattern
// literal-prefix pruning in the glob driver.
func (cp *CompiledPatterns) Patterns() []*Compiled { return cp.patterns }
