// Package pattern compiles wildcard tool-name patterns once and classifies
// them for O(1) matching, used by the policy engine (C8) and rate-limit
// override lookup (C9).
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags how a compiled Pattern matches.
type Kind int

const (
	// Exact matches only the literal pattern text.
	Exact Kind = iota
	// Prefix matches any string beginning with the pattern's prefix ("foo*").
	Prefix
	// Suffix matches any string ending with the pattern's suffix ("*foo").
	Suffix
	// Wildcard matches any string beginning with a prefix and ending with a
	// suffix ("foo*bar"), also used to hold multi-wildcard patterns reduced
	// to their leading prefix and trailing suffix.
	Wildcard
)

// Pattern is a precompiled wildcard pattern.
type Pattern struct {
	raw    string
	kind   Kind
	prefix string
	suffix string
}

// Raw returns the original pattern text.
func (p Pattern) Raw() string { return p.raw }

// Kind returns the pattern's classification.
func (p Pattern) Kind() Kind { return p.kind }

// Sentinel errors from Compile.
var (
	ErrEmptyPattern      = errors.New("pattern: empty pattern")
	ErrQuestionMark      = errors.New("pattern: '?' is not supported")
	ErrConsecutiveStars  = errors.New("pattern: consecutive '**' is not supported")
)

// Compile validates and compiles a single textual pattern.
//
// Compilation rules: the first '*' encountered determines the pattern's
// position (Prefix if it's the only wildcard and trails the text, Suffix
// if it leads, Wildcard otherwise). A pattern with more than one '*' only
// has its first and last wildcard honoured; any wildcards between them
// are ignored, as if the pattern were "firstPrefix*lastSuffix".
func Compile(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, ErrEmptyPattern
	}
	if strings.ContainsRune(raw, '?') {
		return Pattern{}, fmt.Errorf("%w: %q", ErrQuestionMark, raw)
	}
	if strings.Contains(raw, "**") {
		return Pattern{}, fmt.Errorf("%w: %q", ErrConsecutiveStars, raw)
	}

	first := strings.IndexByte(raw, '*')
	if first < 0 {
		return Pattern{raw: raw, kind: Exact}, nil
	}
	last := strings.LastIndexByte(raw, '*')

	prefix := raw[:first]
	suffix := raw[last+1:]

	if first == last {
		switch {
		case prefix == "" && suffix == "":
			// bare "*" matches everything: model as Wildcard with empty parts.
			return Pattern{raw: raw, kind: Wildcard, prefix: "", suffix: ""}, nil
		case suffix == "":
			return Pattern{raw: raw, kind: Prefix, prefix: prefix}, nil
		case prefix == "":
			return Pattern{raw: raw, kind: Suffix, suffix: suffix}, nil
		default:
			return Pattern{raw: raw, kind: Wildcard, prefix: prefix, suffix: suffix}, nil
		}
	}

	// Multiple wildcards: only the outermost prefix/suffix are honoured.
	return Pattern{raw: raw, kind: Wildcard, prefix: prefix, suffix: suffix}, nil
}

// CompileAll compiles every pattern in raws, returning the first error
// encountered (if any) alongside whatever was compiled so far.
func CompileAll(raws []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(raws))
	for _, r := range raws {
		p, err := Compile(r)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Match reports whether s matches the compiled pattern. Matching is
// case-sensitive byte comparison.
func (p Pattern) Match(s string) bool {
	switch p.kind {
	case Exact:
		return s == p.raw
	case Prefix:
		return strings.HasPrefix(s, p.prefix)
	case Suffix:
		return strings.HasSuffix(s, p.suffix)
	case Wildcard:
		if len(s) < len(p.prefix)+len(p.suffix) {
			return false
		}
		return strings.HasPrefix(s, p.prefix) && strings.HasSuffix(s, p.suffix)
	default:
		return false
	}
}

// MatchAny reports whether s matches any of patterns.
func MatchAny(patterns []Pattern, s string) bool {
	for _, p := range patterns {
		if p.Match(s) {
			return true
		}
	}
	return false
}
