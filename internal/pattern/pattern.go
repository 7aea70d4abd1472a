// Package pattern compiles glob patterns into matchers: a literal fast
// path, and otherwise a per-segment regex vector, matched segment by
// segment when no globstar is present and by memoised globstar recursion
// when one is.
// A process-wide LRU (cache.go) caches compiled patterns by
// {pattern, dot, nocase}.
package pattern

import (
	"regexp"
	"strings"
)

// Options parametrize compilation.
type Options struct {
	Dot    bool // match leading dots with * and ?
	NoCase bool
}

// segment is one non-globstar path segment's compiled matcher, or the
// globstar marker itself.
type segment struct {
	isGlobstar bool
	regex      *regexp.Regexp
	literal    string // non-empty when this segment has no wildcard chars
	isLiteral  bool
}

// Compiled is a compiled glob pattern: alternatives come from brace
// expansion; each alternative carries its own segment vector.
type Compiled struct {
	Raw          string
	Negated      bool
	Dot          bool
	NoCase       bool
	IsLiteral    bool // true only when every alternative is a plain literal
	LiteralValue string
	alternatives []*alternative
}

type alternative struct {
	segments      []segment
	hasGlobstar   bool
	minSegments   int
	maxSegments   int // -1 == unbounded
	literalPrefix []string
	isLiteral     bool
	literal       string
	trailingEmpty bool // pattern ended in "/", e.g. "dir/"
}

// Compile builds a matcher for pattern under opts.
func Compile(pattern string, opts Options) (*Compiled, error) {
	raw := pattern
	negated, stripped := stripNegation(pattern)

	dot := opts.Dot || explicitlyMatchesDot(stripped)

	expansions := expandBraces(stripped)

	c := &Compiled{Raw: raw, Negated: negated, Dot: dot, NoCase: opts.NoCase}

	allLiteral := true
	for _, exp := range expansions {
		alt, err := compileAlternative(exp, dot, opts.NoCase)
		if err != nil {
			return nil, err
		}
		if !alt.isLiteral {
			allLiteral = false
		}
		c.alternatives = append(c.alternatives, alt)
	}

	if allLiteral && len(c.alternatives) == 1 {
		c.IsLiteral = true
		c.LiteralValue = c.alternatives[0].literal
	}
	return c, nil
}

// stripNegation counts leading '!' characters; an odd count negates, an
// even count (including zero) cancels out, per invariant 3:
// match("!!"+p,q) = match(p,q), match("!"+p,q) = !match(p,q).
func stripNegation(pattern string) (negated bool, rest string) {
	i := 0
	for i < len(pattern) && pattern[i] == '!' {
		i++
	}
	return i%2 == 1, pattern[i:]
}

// explicitlyMatchesDot implements the patternExplicitlyMatchesDot
// heuristic: a pattern starting with '.' or containing
// "/." is treated as explicitly targeting dotfiles, as is a bracket
// expression whose first alternative is a literal '.' (e.g. "[.]*").
func explicitlyMatchesDot(pattern string) bool {
	if strings.HasPrefix(pattern, ".") {
		return true
	}
	if strings.Contains(pattern, "/.") {
		return true
	}
	if strings.HasPrefix(pattern, "[.") {
		return true
	}
	return false
}

// LiteralPrefix returns the longest leading run of segments containing no
// wildcard character and not "**", used by the glob driver's pruning
// heuristic.
func (c *Compiled) LiteralPrefix() []string {
	if len(c.alternatives) == 0 {
		return nil
	}
	return c.alternatives[0].literalPrefix
}

// HasGlobstar reports whether any alternative contains "**".
func (c *Compiled) HasGlobstar() bool {
	for _, alt := range c.alternatives {
		if alt.hasGlobstar {
			return true
		}
	}
	return false
}

// SegmentBounds returns the first alternative's minimum and maximum path
// segment counts (-1 == unbounded), used by the glob driver's descent
// pruning heuristic to bound non-globstar patterns.
func (c *Compiled) SegmentBounds() (min, max int) {
	if len(c.alternatives) == 0 {
		return 0, 0
	}
	return c.alternatives[0].minSegments, c.alternatives[0].maxSegments
}

// CouldMatchWithin reports whether some deeper path under a directory whose
// relative segments are segs could still match a non-globstar alternative:
// segs must be a strict prefix of the alternative's segment vector with each
// segment accepted by its compiled regex. Globstar alternatives always
// return false here; their descent decision is the literal-prefix
// ancestor/descendant check instead.
func (c *Compiled) CouldMatchWithin(segs []string) bool {
	for _, alt := range c.alternatives {
		if alt.hasGlobstar {
			continue
		}
		if len(segs) >= len(alt.segments) {
			continue
		}
		ok := true
		for i, s := range segs {
			if !alt.segments[i].regex.MatchString(s) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// HasBraceAlternatives reports whether the pattern contains brace syntax,
// used as the signal for the glob driver's synthetic-probe descent
// fallback.
func (c *Compiled) HasBraceAlternatives() bool {
	return len(c.alternatives) > 1
}

// Match reports whether path (already split into '/'-separated segments by
// the caller's convention, but accepted here as a plain string) matches
// the compiled pattern, honouring negation.
func (c *Compiled) Match(path string) bool {
	segs := splitPath(path)
	matched := false
	for _, alt := range c.alternatives {
		if matchAlternative(alt, segs, c.NoCase) {
			matched = true
			break
		}
	}
	if c.Negated {
		return !matched
	}
	return matched
}

func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchAlternative(alt *alternative, pathSegs []string, nocase bool) bool {
	if alt.isLiteral {
		lit := alt.literal
		p := strings.Join(pathSegs, "/")
		if nocase {
			return strings.EqualFold(lit, p)
		}
		return lit == p
	}

	if len(pathSegs) < alt.minSegments {
		return false
	}
	if alt.maxSegments != -1 && len(pathSegs) > alt.maxSegments {
		return false
	}

	if !alt.hasGlobstar {
		if len(alt.segments) != len(pathSegs) {
			return false
		}
		for i, seg := range alt.segments {
			if !seg.regex.MatchString(pathSegs[i]) {
				return false
			}
		}
		return true
	}

	memo := make(map[[2]int]int8) // 0=unknown,1=true,2=false
	var rec func(pi, si int) bool
	rec = func(pi, si int) bool {
		key := [2]int{pi, si}
		if v, ok := memo[key]; ok {
			return v == 1
		}
		var result bool
		switch {
		case pi == len(alt.segments):
			result = si == len(pathSegs)
		case alt.segments[pi].isGlobstar:
			result = rec(pi+1, si) || (si < len(pathSegs) && rec(pi, si+1))
		case si < len(pathSegs) && alt.segments[pi].regex.MatchString(pathSegs[si]):
			result = rec(pi+1, si+1)
		default:
			result = false
		}
		if result {
			memo[key] = 1
		} else {
			memo[key] = 2
		}
		return result
	}
	return rec(0, 0)
}

func compileAlternative(pattern string, dot, nocase bool) (*alternative, error) {
	segs := strings.Split(pattern, "/")

	alt := &alternative{}
	isLiteral := true
	var literalPrefix []string
	prefixDone := false
	globstarCount := 0

	for _, seg := range segs {
		if seg == "**" {
			alt.hasGlobstar = true
			alt.segments = append(alt.segments, segment{isGlobstar: true})
			isLiteral = false
			globstarCount++
			prefixDone = true
			continue
		}

		literal, hasWildcard := literalSegment(seg)
		if !hasWildcard && !prefixDone {
			literalPrefix = append(literalPrefix, literal)
		} else {
			prefixDone = true
		}
		if hasWildcard {
			isLiteral = false
		}

		re, err := compileSegmentRegex(seg, dot, nocase)
		if err != nil {
			return nil, err
		}
		alt.segments = append(alt.segments, segment{regex: re, literal: literal, isLiteral: !hasWildcard})
	}

	alt.literalPrefix = literalPrefix
	alt.minSegments = len(alt.segments) - globstarCount
	if globstarCount > 0 {
		alt.maxSegments = -1
	} else {
		alt.maxSegments = len(alt.segments)
	}
	alt.isLiteral = isLiteral
	if isLiteral {
		alt.literal = pattern
	}
	return alt, nil
}

// literalSegment reports whether seg contains no glob metacharacters, and
// returns its unescaped literal value regardless.
func literalSegment(seg string) (literal string, hasWildcard bool) {
	var sb strings.Builder
	for i := 0; i < len(seg); i++ {
		switch seg[i] {
		case '\\':
			if i+1 < len(seg) {
				sb.WriteByte(seg[i+1])
				i++
			}
		case '*', '?', '[':
			hasWildcard = true
			sb.WriteByte(seg[i])
		default:
			sb.WriteByte(seg[i])
		}
	}
	return sb.String(), hasWildcard
}

// compileSegmentRegex translates one glob segment into an anchored regex,
// applying the dotfile rule to '*'/'?' only at the start of the segment.
func compileSegmentRegex(seg string, dot, nocase bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	if nocase {
		sb.WriteString("(?i)")
	}

	atStart := true
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		switch c {
		case '\\':
			if i+1 < len(seg) {
				sb.WriteString(regexp.QuoteMeta(string(seg[i+1])))
				i++
			}
			atStart = false
		case '*':
			if atStart && !dot {
				sb.WriteString(`(?:[^/.][^/]*)?`)
			} else {
				sb.WriteString(`[^/]*`)
			}
			atStart = false
		case '?':
			if atStart && !dot {
				sb.WriteString(`[^/.]`)
			} else {
				sb.WriteString(`[^/]`)
			}
			atStart = false
		case '[':
			j := i + 1
			neg := false
			if j < len(seg) && (seg[j] == '!' || seg[j] == '^') {
				neg = true
				j++
			}
			classStart := j
			for j < len(seg) && seg[j] != ']' {
				j++
			}
			if j >= len(seg) {
				sb.WriteString(regexp.QuoteMeta("["))
				atStart = false
				continue
			}
			class := seg[classStart:j]
			sb.WriteString("[")
			if neg {
				sb.WriteString("^")
			}
			sb.WriteString(class)
			sb.WriteString("]")
			i = j
			atStart = false
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
			atStart = false
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// expandBraces expands nested brace groups ("{a,b}") into the cartesian
// product of literal alternatives. A pattern with no braces expands to
// itself.
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start == -1 {
		return []string{pattern}
	}
	depth := 0
	end := -1
	for i := start; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return []string{pattern}
	}

	prefix := pattern[:start]
	suffix := pattern[end+1:]
	body := pattern[start+1 : end]

	alternatives := splitBraceBody(body)
	var out []string
	for _, alt := range alternatives {
		for _, suffixExpansion := range expandBraces(prefix + alt + suffix) {
			out = append(out, suffixExpansion)
		}
	}
	return out
}

// splitBraceBody splits a brace body on top-level commas, respecting
// nested braces.
func splitBraceBody(body string) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, body[last:])
	return parts
}
