// Package discovery provides DiscoveryProvider implementations for the
// Upstream Registry (C5): a config-sourced static list, a manifest
// crawl over configured seed URLs, and a Consul-backed provider.
package discovery

import (
	"context"

	"github.com/relaygate/gateway/internal/domain/upstream"
)

// StaticProvider returns a fixed, configured list of upstream
// candidates. Its change token never fires: static configuration
// never changes without a process restart.
type StaticProvider struct {
	upstreams []upstream.Upstream
}

// NewStaticProvider builds a StaticProvider over configured.
func NewStaticProvider(configured []upstream.Upstream) *StaticProvider {
	return &StaticProvider{upstreams: configured}
}

// Discover returns a copy of the configured upstream list.
func (p *StaticProvider) Discover(ctx context.Context) ([]upstream.Upstream, error) {
	out := make([]upstream.Upstream, len(p.upstreams))
	copy(out, p.upstreams)
	return out, nil
}

// Watch returns nil: a static provider never signals a change.
func (p *StaticProvider) Watch() upstream.ChangeToken {
	return nil
}

var _ upstream.DiscoveryProvider = (*StaticProvider)(nil)
