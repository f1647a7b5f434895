// Package path implements the hierarchical specifier type used throughout
// the module registry: parsing, parent navigation, and relative-specifier
// evaluation against a referrer.
package path

import (
	"errors"
	"hash/fnv"
	"strings"
)

var (
	// ErrEmpty is returned when parsing an empty specifier string.
	ErrEmpty = errors.New("path: empty specifier")
	// ErrEmptySegment is returned when a specifier contains a "//" or a
	// trailing/leading separator that produces an empty segment.
	ErrEmptySegment = errors.New("path: empty segment")
	// ErrNullByte is returned when a segment contains a null byte.
	ErrNullByte = errors.New("path: segment contains null byte")
	// ErrEscapesRoot is returned when a ".." in eval() would climb above root.
	ErrEscapesRoot = errors.New("path: \"..\" escapes root")
)

// reservedPrefixes are the specifier prefixes that are always treated as
// single-segment absolute paths, bypassing referrer-relative resolution.
var reservedPrefixes = []string{"node:", "cloudflare:", "workerd:"}

// HasReservedPrefix reports whether s begins with one of the built-in
// module prefixes (node:, cloudflare:, workerd:).
func HasReservedPrefix(s string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Path is a sequence of non-empty segments with an absolute/relative flag.
// The zero value is an empty relative path; Root returns the absolute
// root ("/").
type Path struct {
	segments []string
	absolute bool
}

// Root returns the absolute root path.
func Root() Path {
	return Path{absolute: true}
}

func validateSegment(seg string) error {
	if seg == "" {
		return ErrEmptySegment
	}
	if strings.IndexByte(seg, 0) >= 0 {
		return ErrNullByte
	}
	return nil
}

// Parse parses a specifier string. It fails on an empty string, an empty
// segment (e.g. a double slash), or a segment containing a null byte.
// A string beginning with a reserved prefix (node:, cloudflare:, workerd:)
// always parses as a single-segment absolute path, regardless of any
// leading separator.
func Parse(s string) (Path, error) {
	if s == "" {
		return Path{}, ErrEmpty
	}
	if HasReservedPrefix(s) {
		if err := validateSegment(s); err != nil {
			return Path{}, err
		}
		return Path{segments: []string{s}, absolute: true}, nil
	}

	absolute := strings.HasPrefix(s, "/")
	rest := s
	if absolute {
		rest = s[1:]
	}
	if rest == "" {
		return Path{absolute: absolute}, nil
	}

	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if err := validateSegment(p); err != nil {
			return Path{}, err
		}
	}
	return Path{segments: parts, absolute: absolute}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static builtin registration where the specifier is a Go literal.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Parent drops the last segment. The root's parent is the root.
func (p Path) Parent() Path {
	if len(p.segments) == 0 {
		return p
	}
	out := make([]string, len(p.segments)-1)
	copy(out, p.segments[:len(p.segments)-1])
	return Path{segments: out, absolute: p.absolute}
}

// Eval resolves a relative specifier (possibly containing "." and "..")
// against p treated as the containing directory. A relative specifier
// beginning with a reserved prefix short-circuits: it is parsed on its own
// and returned as a single-segment absolute path without consulting p at
// all. This is the mechanism by which built-in specifiers bypass
// referrer-relative resolution (spec.md §4.1).
func (p Path) Eval(relative string) (Path, error) {
	if relative == "" {
		return Path{}, ErrEmpty
	}
	if HasReservedPrefix(relative) {
		return Parse(relative)
	}

	var base []string
	if strings.HasPrefix(relative, "/") {
		base = nil
	} else {
		base = append([]string(nil), p.segments...)
	}

	rest := strings.TrimPrefix(relative, "/")
	for _, seg := range strings.Split(rest, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(base) == 0 {
				return Path{}, ErrEscapesRoot
			}
			base = base[:len(base)-1]
		default:
			if err := validateSegment(seg); err != nil {
				return Path{}, err
			}
			base = append(base, seg)
		}
	}
	return Path{segments: base, absolute: true}, nil
}

// String renders the path in its natural form (absolute paths get a
// leading separator, relative ones don't).
func (p Path) String() string {
	return p.ToString(p.absolute)
}

// ToString renders the path, forcing a leading separator when absolute is
// true regardless of how the path was originally parsed.
func (p Path) ToString(absolute bool) string {
	inner := strings.Join(p.segments, "/")
	if absolute {
		return "/" + inner
	}
	return inner
}

// IsAbsolute reports whether the path was parsed (or produced by Eval) as
// absolute.
func (p Path) IsAbsolute() bool {
	return p.absolute
}

// Segments returns a copy of the path's segments.
func (p Path) Segments() []string {
	return append([]string(nil), p.segments...)
}

// Equal reports structural, segment-wise equality.
func (p Path) Equal(o Path) bool {
	if p.absolute != o.absolute || len(p.segments) != len(o.segments) {
		return false
	}
	for i, s := range p.segments {
		if o.segments[i] != s {
			return false
		}
	}
	return true
}

// HashCode returns a stable hash suitable for use as (or combined into) a
// map key, matching the "hash combines both fields" requirement of
// registry.Key (spec.md §3).
func (p Path) HashCode() uint64 {
	h := fnv.New64a()
	if p.absolute {
		h.Write([]byte{1})
	}
	for _, s := range p.segments {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
