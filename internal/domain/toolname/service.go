// Package toolname translates between upstream-local tool names and the
// namespaced external names clients see.
package toolname

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by Service methods.
var (
	// ErrInvalidArgument indicates a caller bug: an empty or malformed
	// prefix/tool name was supplied.
	ErrInvalidArgument = errors.New("toolname: invalid argument")
	// ErrPrefixMismatch indicates an external name does not begin with the
	// expected prefix + separator.
	ErrPrefixMismatch = errors.New("toolname: prefix mismatch")
	// ErrEmptyInternalName indicates the remainder after stripping the
	// prefix was empty.
	ErrEmptyInternalName = errors.New("toolname: empty internal name")
)

// allowedPrefixChar reports whether r is permitted in a namespace prefix:
// letters, digits, '.', '_', '-'.
func allowedPrefixChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	default:
		return false
	}
}

// Service performs bidirectional (prefix, upstreamTool) <-> externalTool
// translation. The zero value is not usable; construct with New.
type Service struct {
	separator string
}

// New returns a Service using sep as the separator between a namespace
// prefix and the upstream tool name. An empty sep defaults to ".".
func New(sep string) *Service {
	if sep == "" {
		sep = "."
	}
	return &Service{separator: sep}
}

// Separator returns the configured separator.
func (s *Service) Separator() string {
	return s.separator
}

// validPrefix reports whether prefix contains only allowed characters and
// is non-empty.
func validPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, r := range prefix {
		if !allowedPrefixChar(r) {
			return false
		}
	}
	return true
}

// ToExternal produces the external tool name prefix+separator+upstreamTool.
// The prefix is applied unconditionally, even if upstreamTool already
// contains the separator. Fails with ErrInvalidArgument if prefix or
// upstreamTool is empty, or prefix contains a disallowed character.
func (s *Service) ToExternal(prefix, upstreamTool string) (string, error) {
	if upstreamTool == "" {
		return "", fmt.Errorf("%w: upstream tool name is empty", ErrInvalidArgument)
	}
	if !validPrefix(prefix) {
		return "", fmt.Errorf("%w: invalid namespace prefix %q", ErrInvalidArgument, prefix)
	}
	return prefix + s.separator + upstreamTool, nil
}

// ToInternal strips the expected prefix+separator from the head of
// external, returning the upstream-local tool name. Fails with
// ErrPrefixMismatch if external does not start with prefix+separator, and
// with ErrEmptyInternalName if the remainder is empty.
func (s *Service) ToInternal(prefix, external string) (string, error) {
	want := prefix + s.separator
	if !strings.HasPrefix(external, want) {
		return "", fmt.Errorf("%w: %q does not start with %q", ErrPrefixMismatch, external, want)
	}
	rest := external[len(want):]
	if rest == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyInternalName, external)
	}
	return rest, nil
}

// BelongsToUpstream reports whether external was produced from the given
// namespace prefix. Total: never raises.
func (s *Service) BelongsToUpstream(prefix, external string) bool {
	return strings.HasPrefix(external, prefix+s.separator)
}

// ExtractNamespacePrefix returns the substring of external preceding the
// last occurrence of the separator, if that substring is a valid prefix.
// Returns ("", false) otherwise.
func (s *Service) ExtractNamespacePrefix(external string) (string, bool) {
	idx := strings.LastIndex(external, s.separator)
	if idx <= 0 {
		return "", false
	}
	prefix := external[:idx]
	if !validPrefix(prefix) {
		return "", false
	}
	return prefix, true
}
