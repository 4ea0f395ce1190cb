// Package upstream contains domain types for MCP upstream server
// configuration and the registry/discovery contracts (C5).
package upstream

import (
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// namespacePrefixPattern restricts a namespace prefix to
// [A-Za-z0-9._-], per spec.
var namespacePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// DefaultRequestTimeout is used when an Upstream does not specify one.
const DefaultRequestTimeout = 30 * time.Second

// Upstream is an upstream server configuration. Immutable after
// construction except via whole-object replacement (a refresh publishes a
// brand-new slice of Upstreams rather than mutating one in place).
type Upstream struct {
	// UpstreamName uniquely identifies this upstream. Non-empty.
	UpstreamName string
	// Endpoint is the absolute http(s) URL of the upstream's MCP server.
	Endpoint string
	// NamespacePrefix is applied to every tool this upstream advertises.
	// Must be non-empty, restricted to [A-Za-z0-9._-], and unique across
	// enabled upstreams.
	NamespacePrefix string
	// Enabled controls whether this upstream participates in catalog
	// aggregation. Defaults to true.
	Enabled bool
	// RequestTimeout bounds a single outbound call to this upstream.
	// Defaults to DefaultRequestTimeout if zero.
	RequestTimeout time.Duration
	// DefaultHeaders are merged into every outbound request to this
	// upstream without overriding a header already set by the caller.
	DefaultHeaders map[string]string
}

// WithDefaults returns a copy of u with its RequestTimeout filled in
// when zero. Callers constructing an Upstream from scratch (discovery
// providers, config loading) are responsible for setting Enabled
// explicitly since its zero value is ambiguous with "disabled".
func (u Upstream) WithDefaults() Upstream {
	if u.RequestTimeout <= 0 {
		u.RequestTimeout = DefaultRequestTimeout
	}
	return u
}

// Validate checks the invariants from spec.md §3. Returns nil if valid.
func (u Upstream) Validate() error {
	if u.UpstreamName == "" {
		return fmt.Errorf("%w: upstream name is empty", ErrInvalidUpstream)
	}
	if u.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is empty", ErrInvalidUpstream)
	}
	parsed, err := url.Parse(u.Endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not an absolute http(s) URL", ErrInvalidUpstream, u.Endpoint)
	}
	if u.NamespacePrefix == "" {
		return fmt.Errorf("%w: namespace prefix is empty", ErrInvalidUpstream)
	}
	if !namespacePrefixPattern.MatchString(u.NamespacePrefix) {
		return fmt.Errorf("%w: namespace prefix %q contains disallowed characters", ErrInvalidUpstream, u.NamespacePrefix)
	}
	if u.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout", ErrInvalidUpstream)
	}
	return nil
}
