// Package vpath implements the virtual POSIX path primitives:
// normalisation, joining, and the ancestor checks the CAS layout and the
// in-memory backend both depend on. Everything is purely lexical over a
// virtual tree rooted at "/"; no real filesystem is consulted.
package vpath

import "strings"

// Normalise collapses repeated slashes, resolves "." and ".." lexically (no
// filesystem access), and strips a trailing slash except on the root. A
// relative input is made absolute by prefixing "/". Normalise is idempotent:
// Normalise(Normalise(p)) == Normalise(p).
func Normalise(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	segments := strings.Split(p, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	if len(stack) == 0 {
		return "/"
	}
	return "/" + strings.Join(stack, "/")
}

// Join normalises base joined with the given relative elements.
func Join(base string, elems ...string) string {
	all := append([]string{base}, elems...)
	return Normalise(strings.Join(all, "/"))
}

// Split returns the normalised segments of p (empty for the root).
func Split(p string) []string {
	n := Normalise(p)
	if n == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(n, "/"), "/")
}

// Dir returns the normalised parent of p ("/" if p is already the root).
func Dir(p string) string {
	segs := Split(p)
	if len(segs) <= 1 {
		return "/"
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/")
}

// Base returns the final segment of p ("/" if p is the root).
func Base(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return "/"
	}
	return segs[len(segs)-1]
}

// Relative returns target expressed relative to base (no leading "/"); both
// are normalised first. If target does not lie under base, the result may
// contain ".." segments.
func Relative(base, target string) string {
	baseSegs := Split(base)
	targetSegs := Split(target)

	common := 0
	for common < len(baseSegs) && common < len(targetSegs) && baseSegs[common] == targetSegs[common] {
		common++
	}

	up := len(baseSegs) - common
	rest := targetSegs[common:]

	parts := make([]string, 0, up+len(rest))
	for i := 0; i < up; i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, rest...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// IsAncestor reports whether ancestor is a, or is a path-segment ancestor
// of, descendant (both normalised first).
func IsAncestor(ancestor, descendant string) bool {
	a := Normalise(ancestor)
	d := Normalise(descendant)
	if a == d {
		return true
	}
	if a == "/" {
		return true
	}
	return strings.HasPrefix(d, a+"/")
}

// WithinRoot reports whether p, once normalised, stays within root (used to
// reject traversal-beyond-root attempts in path validation).
func WithinRoot(root, p string) bool {
	return IsAncestor(Normalise(root), Join(root, p))
}
