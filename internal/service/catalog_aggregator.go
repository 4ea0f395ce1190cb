package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/toolname"
	"github.com/relaygate/gateway/internal/domain/upstream"
)

// DefaultMaxConcurrentProbes bounds how many upstreams are probed in
// parallel during a single rebuild (spec.md §5 back-pressure).
const DefaultMaxConcurrentProbes = 10

// toolsFetcher is implemented by the outbound MCP client for fetching
// a healthy upstream's advertised tool list.
type toolsFetcher interface {
	Call(ctx context.Context, endpoint string, headers map[string]string, method string, params any) (*mcpout.RPCResponse, error)
}

type healthProber interface {
	Probe(ctx context.Context, up upstream.Upstream) (catalog.ProbeResult, error)
}

// Aggregator implements the Catalog Aggregator (C7): it holds the
// current Snapshot, the time it was built, and a mutex serializing
// rebuilds. Reads never block.
type Aggregator struct {
	registry upstream.Registry
	prober   healthProber
	client   toolsFetcher
	names    *toolname.Service
	logger   *slog.Logger

	freshness      time.Duration
	maxConcurrency int

	current   atomic.Pointer[catalog.Snapshot]
	builtAt   atomic.Pointer[time.Time]
	rebuildMu sync.Mutex

	// lastConflicts records the tool-name collisions discarded by the
	// most recent rebuild, for the read-only admin surface.
	lastConflicts atomic.Pointer[[]string]
}

// NewAggregator builds an Aggregator with an empty initial snapshot.
func NewAggregator(registry upstream.Registry, prober healthProber, client toolsFetcher, names *toolname.Service, freshness time.Duration, maxConcurrency int, logger *slog.Logger) *Aggregator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrentProbes
	}
	a := &Aggregator{
		registry:       registry,
		prober:         prober,
		client:         client,
		names:          names,
		freshness:      freshness,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
	empty := catalog.Empty("")
	a.current.Store(&empty)
	zero := time.Time{}
	a.builtAt.Store(&zero)
	noConflicts := []string{}
	a.lastConflicts.Store(&noConflicts)
	return a
}

// GetSnapshot returns the current snapshot without blocking.
func (a *Aggregator) GetSnapshot() catalog.Snapshot {
	return *a.current.Load()
}

// LastConflicts returns the external-name collisions discarded by the
// last rebuild.
func (a *Aggregator) LastConflicts() []string {
	return *a.lastConflicts.Load()
}

// EnsureFreshSnapshotAsync returns the current snapshot if it is still
// within the freshness window, otherwise serializes behind rebuildMu
// and rebuilds.
func (a *Aggregator) EnsureFreshSnapshotAsync(ctx context.Context) (catalog.Snapshot, error) {
	builtAt := *a.builtAt.Load()
	if a.freshness > 0 && time.Since(builtAt) < a.freshness {
		return a.GetSnapshot(), nil
	}
	return a.Rebuild(ctx)
}

type probeOutcome struct {
	up      upstream.Upstream
	healthy bool
	tools   []mcpout.ToolListEntry
}

// Rebuild unconditionally performs one aggregation pass: fan out up to
// maxConcurrency probes across the enabled upstreams, then fold the
// results into a brand-new, atomically-published Snapshot. Unhealthy
// upstreams contribute no tools (the default "drop tools for unhealthy
// upstreams" strategy, not "preserve on failure").
func (a *Aggregator) Rebuild(ctx context.Context) (catalog.Snapshot, error) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	enabled, err := a.registry.GetUpstreamsAsync(ctx)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("catalog aggregator: listing upstreams: %w", err)
	}

	outcomes := make([]probeOutcome, len(enabled))
	sem := make(chan struct{}, a.maxConcurrency)
	var wg sync.WaitGroup

	for i, up := range enabled {
		wg.Add(1)
		go func(i int, up upstream.Upstream) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = a.probeOne(ctx, up)
		}(i, up)
	}
	wg.Wait()

	toolsByExternal := make(map[string]catalog.ToolDescriptor)
	upstreamHealth := make(map[string]bool, len(enabled))
	var conflicts []string

	for _, o := range outcomes {
		upstreamHealth[o.up.UpstreamName] = o.healthy
		if !o.healthy {
			continue
		}
		for _, t := range o.tools {
			external, err := a.names.ToExternal(o.up.NamespacePrefix, t.Name)
			if err != nil {
				a.logf("skipping tool %q from upstream %q: %v", t.Name, o.up.UpstreamName, err)
				continue
			}
			if _, exists := toolsByExternal[external]; exists {
				conflicts = append(conflicts, external)
				a.logf("tool name collision on %q: upstream %q discarded", external, o.up.UpstreamName)
				continue
			}
			toolsByExternal[external] = catalog.ToolDescriptor{
				ExternalToolName: external,
				UpstreamName:     o.up.UpstreamName,
				UpstreamToolName: t.Name,
				Description:      t.Description,
				InputSchema:      t.InputSchema,
			}
		}
	}

	snapshot := catalog.Snapshot{
		CreatedAt:           time.Now(),
		ToolsByExternalName: toolsByExternal,
		UpstreamHealth:      upstreamHealth,
		SourceVersion:       fmt.Sprintf("%d", time.Now().UnixNano()),
	}

	a.current.Store(&snapshot)
	builtAt := snapshot.CreatedAt
	a.builtAt.Store(&builtAt)
	a.lastConflicts.Store(&conflicts)

	return snapshot, nil
}

func (a *Aggregator) probeOne(ctx context.Context, up upstream.Upstream) probeOutcome {
	probeResult, err := a.prober.Probe(ctx, up)
	if err != nil || !probeResult.Healthy {
		return probeOutcome{up: up, healthy: false}
	}

	timeout := up.RequestTimeout
	if timeout <= 0 {
		timeout = upstream.DefaultRequestTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.client.Call(fetchCtx, toolsListRoot(up.Endpoint), up.DefaultHeaders, "tools/list", map[string]any{})
	if err != nil || resp.Error != nil {
		return probeOutcome{up: up, healthy: false}
	}

	var result mcpout.ToolsListResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return probeOutcome{up: up, healthy: false}
	}

	return probeOutcome{up: up, healthy: true, tools: result.Tools}
}

func (a *Aggregator) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(fmt.Sprintf(format, args...))
	}
}
