package upstream

import (
	"context"
	"errors"
)

// ErrInvalidUpstream is wrapped by Upstream.Validate failures.
var ErrInvalidUpstream = errors.New("upstream: invalid configuration")

// ErrUpstreamNotFound is returned when a lookup by name fails.
var ErrUpstreamNotFound = errors.New("upstream: not found")

// Registry holds enabled/all upstream snapshots, refreshable from a
// DiscoveryProvider. Reads are lock-free; RefreshAsync serializes
// concurrent refreshes behind a single-entry mutex and never corrupts the
// published snapshot on failure.
type Registry interface {
	// GetUpstreamsAsync returns only the enabled upstreams from the
	// current snapshot.
	GetUpstreamsAsync(ctx context.Context) ([]Upstream, error)
	// GetAllUpstreamsAsync returns every upstream discovered, enabled or
	// not.
	GetAllUpstreamsAsync(ctx context.Context) ([]Upstream, error)
	// GetByName returns a single upstream (enabled or not) by name, or
	// ErrUpstreamNotFound.
	GetByName(ctx context.Context, name string) (Upstream, error)
	// RefreshAsync re-runs discovery and atomically swaps in a new
	// snapshot pair on success. A failed refresh preserves the existing
	// snapshot.
	RefreshAsync(ctx context.Context) error
}

// ChangeToken is fired (closed) exactly once when a DiscoveryProvider's
// view of the world changes; the caller should call Discover again and
// then call Watch again for a fresh token. Single-shot by specification
// (§9 open question, resolved: fires-once, reset after each fire).
type ChangeToken <-chan struct{}

// DiscoveryProvider supplies the set of upstreams known to an external
// source (a service catalog, a manifest crawl, a static file).
type DiscoveryProvider interface {
	// Discover returns the provider's current view of upstream candidates.
	Discover(ctx context.Context) ([]Upstream, error)
	// Watch returns a ChangeToken that fires when the provider's view has
	// changed, or nil if the provider never signals changes (e.g. static
	// config).
	Watch() ChangeToken
}
