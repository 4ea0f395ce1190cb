package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/relaygate/gateway/internal/domain/upstream"
)

// upstreamSnapshot pairs the full discovered set with the
// enabled-only subset, published together under one atomic write.
type upstreamSnapshot struct {
	all     []upstream.Upstream
	enabled []upstream.Upstream
	byName  map[string]upstream.Upstream
}

func newUpstreamSnapshot(all []upstream.Upstream) upstreamSnapshot {
	enabled := make([]upstream.Upstream, 0, len(all))
	byName := make(map[string]upstream.Upstream, len(all))
	for _, u := range all {
		byName[u.UpstreamName] = u
		if u.Enabled {
			enabled = append(enabled, u)
		}
	}
	return upstreamSnapshot{all: all, enabled: enabled, byName: byName}
}

// DynamicRegistry implements the Upstream Registry (C5) backed by a
// DiscoveryProvider. Reads are lock-free; RefreshAsync serializes
// concurrent refreshes behind a single-entry mutex and never corrupts
// the published snapshot on failure.
type DynamicRegistry struct {
	provider upstream.DiscoveryProvider
	logger   *slog.Logger

	current    atomic.Pointer[upstreamSnapshot]
	refreshing sync.Mutex
}

// NewDynamicRegistry builds a DynamicRegistry with an empty initial
// snapshot; call RefreshAsync once before serving traffic.
func NewDynamicRegistry(provider upstream.DiscoveryProvider, logger *slog.Logger) *DynamicRegistry {
	r := &DynamicRegistry{provider: provider, logger: logger}
	empty := newUpstreamSnapshot(nil)
	r.current.Store(&empty)
	return r
}

// GetUpstreamsAsync returns the enabled subset of the current snapshot.
func (r *DynamicRegistry) GetUpstreamsAsync(ctx context.Context) ([]upstream.Upstream, error) {
	snap := r.current.Load()
	out := make([]upstream.Upstream, len(snap.enabled))
	copy(out, snap.enabled)
	return out, nil
}

// GetAllUpstreamsAsync returns every discovered upstream, enabled or not.
func (r *DynamicRegistry) GetAllUpstreamsAsync(ctx context.Context) ([]upstream.Upstream, error) {
	snap := r.current.Load()
	out := make([]upstream.Upstream, len(snap.all))
	copy(out, snap.all)
	return out, nil
}

// GetByName returns a single upstream by name, enabled or not.
func (r *DynamicRegistry) GetByName(ctx context.Context, name string) (upstream.Upstream, error) {
	snap := r.current.Load()
	u, ok := snap.byName[name]
	if !ok {
		return upstream.Upstream{}, fmt.Errorf("%w: %s", upstream.ErrUpstreamNotFound, name)
	}
	return u, nil
}

// RefreshAsync re-runs discovery and, on success, atomically swaps in a
// new snapshot. Candidates are deduplicated by UpstreamName and
// NamespacePrefix within this pass: the first accepted candidate for
// each wins, later ones are skipped with a warning; invalid entries
// (failing Validate) are likewise skipped rather than aborting the
// refresh.
func (r *DynamicRegistry) RefreshAsync(ctx context.Context) error {
	r.refreshing.Lock()
	defer r.refreshing.Unlock()

	candidates, err := r.provider.Discover(ctx)
	if err != nil {
		return fmt.Errorf("upstream registry: discovery failed: %w", err)
	}

	seenNames := make(map[string]struct{}, len(candidates))
	seenPrefixes := make(map[string]struct{}, len(candidates))
	accepted := make([]upstream.Upstream, 0, len(candidates))

	for _, c := range candidates {
		c = c.WithDefaults()
		if err := c.Validate(); err != nil {
			r.logf("skipping invalid upstream candidate: %v", err)
			continue
		}
		if _, dup := seenNames[c.UpstreamName]; dup {
			r.logf("skipping duplicate upstream name %q", c.UpstreamName)
			continue
		}
		if _, dup := seenPrefixes[c.NamespacePrefix]; dup {
			r.logf("skipping upstream %q: duplicate namespace prefix %q", c.UpstreamName, c.NamespacePrefix)
			continue
		}
		seenNames[c.UpstreamName] = struct{}{}
		seenPrefixes[c.NamespacePrefix] = struct{}{}
		accepted = append(accepted, c)
	}

	next := newUpstreamSnapshot(accepted)
	r.current.Store(&next)
	return nil
}

func (r *DynamicRegistry) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(fmt.Sprintf(format, args...))
	}
}

// StaticRegistry implements the Upstream Registry (C5) over a fixed,
// configured list: it ignores any DiscoveryProvider and never refreshes.
type StaticRegistry struct {
	snapshot upstreamSnapshot
}

// NewStaticRegistry validates and deduplicates configured the same way
// DynamicRegistry.RefreshAsync does, then freezes the result.
func NewStaticRegistry(configured []upstream.Upstream, logger *slog.Logger) *StaticRegistry {
	seenNames := make(map[string]struct{}, len(configured))
	seenPrefixes := make(map[string]struct{}, len(configured))
	accepted := make([]upstream.Upstream, 0, len(configured))

	for _, c := range configured {
		c = c.WithDefaults()
		if err := c.Validate(); err != nil {
			if logger != nil {
				logger.Warn("skipping invalid static upstream", "error", err)
			}
			continue
		}
		if _, dup := seenNames[c.UpstreamName]; dup {
			continue
		}
		if _, dup := seenPrefixes[c.NamespacePrefix]; dup {
			continue
		}
		seenNames[c.UpstreamName] = struct{}{}
		seenPrefixes[c.NamespacePrefix] = struct{}{}
		accepted = append(accepted, c)
	}

	return &StaticRegistry{snapshot: newUpstreamSnapshot(accepted)}
}

func (r *StaticRegistry) GetUpstreamsAsync(ctx context.Context) ([]upstream.Upstream, error) {
	out := make([]upstream.Upstream, len(r.snapshot.enabled))
	copy(out, r.snapshot.enabled)
	return out, nil
}

func (r *StaticRegistry) GetAllUpstreamsAsync(ctx context.Context) ([]upstream.Upstream, error) {
	out := make([]upstream.Upstream, len(r.snapshot.all))
	copy(out, r.snapshot.all)
	return out, nil
}

func (r *StaticRegistry) GetByName(ctx context.Context, name string) (upstream.Upstream, error) {
	u, ok := r.snapshot.byName[name]
	if !ok {
		return upstream.Upstream{}, fmt.Errorf("%w: %s", upstream.ErrUpstreamNotFound, name)
	}
	return u, nil
}

// RefreshAsync is a no-op for a static registry.
func (r *StaticRegistry) RefreshAsync(ctx context.Context) error {
	return nil
}

var (
	_ upstream.Registry = (*DynamicRegistry)(nil)
	_ upstream.Registry = (*StaticRegistry)(nil)
)
