package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/toolname"
	"github.com/relaygate/gateway/internal/domain/upstream"
)

// stubProber reports a fixed health outcome per upstream name.
type stubProber struct {
	healthy map[string]bool
}

func (p stubProber) Probe(ctx context.Context, up upstream.Upstream) (catalog.ProbeResult, error) {
	if p.healthy[up.UpstreamName] {
		return catalog.ProbeResult{Healthy: true, Strategy: catalog.ToolsList}, nil
	}
	return catalog.ProbeResult{Healthy: false, Strategy: catalog.ToolsList, ErrorMessage: "stub: unhealthy"}, nil
}

// stubToolsFetcher returns a fixed tools/list result per upstream
// endpoint, keyed by the endpoint string the aggregator calls.
type stubToolsFetcher struct {
	toolsByEndpoint map[string][]mcpout.ToolListEntry
}

func (f stubToolsFetcher) Call(ctx context.Context, endpoint string, headers map[string]string, method string, params any) (*mcpout.RPCResponse, error) {
	tools, ok := f.toolsByEndpoint[endpoint]
	if !ok {
		tools = nil
	}
	result := mcpout.ToolsListResult{Tools: tools}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &mcpout.RPCResponse{JSONRPC: "2.0", Result: raw}, nil
}

func aggregatorUpstream(name, prefix string) upstream.Upstream {
	return upstream.Upstream{
		UpstreamName:    name,
		Endpoint:        "http://" + name + ".internal/mcp",
		NamespacePrefix: prefix,
		Enabled:         true,
		RequestTimeout:  time.Second,
	}
}

func TestAggregatorRebuildAggregatesHealthyUpstreams(t *testing.T) {
	up1 := aggregatorUpstream("alpha", "a")
	up2 := aggregatorUpstream("beta", "b")
	registry := NewStaticRegistry([]upstream.Upstream{up1, up2}, nil)

	prober := stubProber{healthy: map[string]bool{"alpha": true, "beta": true}}
	fetcher := stubToolsFetcher{toolsByEndpoint: map[string][]mcpout.ToolListEntry{
		toolsListRoot(up1.Endpoint): {{Name: "search"}},
		toolsListRoot(up2.Endpoint): {{Name: "lookup"}},
	}}

	aggregator := NewAggregator(registry, prober, fetcher, toolname.New("."), time.Minute, DefaultMaxConcurrentProbes, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	snapshot, err := aggregator.Rebuild(context.Background())
	require.NoError(t, err)

	assert.True(t, snapshot.IsUpstreamHealthy("alpha"))
	assert.True(t, snapshot.IsUpstreamHealthy("beta"))

	_, ok := snapshot.Lookup("a.search")
	assert.True(t, ok)
	_, ok = snapshot.Lookup("b.lookup")
	assert.True(t, ok)
	assert.Empty(t, aggregator.LastConflicts())
}

func TestAggregatorRebuildDropsToolsFromUnhealthyUpstream(t *testing.T) {
	up1 := aggregatorUpstream("alpha", "a")
	registry := NewStaticRegistry([]upstream.Upstream{up1}, nil)

	prober := stubProber{healthy: map[string]bool{}} // everyone unhealthy
	fetcher := stubToolsFetcher{toolsByEndpoint: map[string][]mcpout.ToolListEntry{
		toolsListRoot(up1.Endpoint): {{Name: "search"}},
	}}

	aggregator := NewAggregator(registry, prober, fetcher, toolname.New("."), time.Minute, DefaultMaxConcurrentProbes, nil)

	snapshot, err := aggregator.Rebuild(context.Background())
	require.NoError(t, err)

	assert.False(t, snapshot.IsUpstreamHealthy("alpha"))
	_, ok := snapshot.Lookup("a.search")
	assert.False(t, ok)
}

func TestAggregatorRebuildRecordsNameCollisions(t *testing.T) {
	// DynamicRegistry/StaticRegistry both reject a second upstream sharing
	// a namespace prefix, so a genuine external-name collision needs a
	// registry stub that bypasses that dedup.
	up1 := aggregatorUpstream("alpha", "shared")
	up2 := aggregatorUpstream("beta", "shared")
	registry := &fixedRegistry{upstreams: []upstream.Upstream{up1, up2}}

	prober := stubProber{healthy: map[string]bool{"alpha": true, "beta": true}}
	fetcher := stubToolsFetcher{toolsByEndpoint: map[string][]mcpout.ToolListEntry{
		toolsListRoot(up1.Endpoint): {{Name: "run"}},
		toolsListRoot(up2.Endpoint): {{Name: "run"}},
	}}

	aggregator := NewAggregator(registry, prober, fetcher, toolname.New("."), time.Minute, DefaultMaxConcurrentProbes, nil)
	snapshot, err := aggregator.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Len(t, snapshot.ToolsByExternalName, 1)
	assert.Contains(t, aggregator.LastConflicts(), "shared.run")
}

func TestAggregatorEnsureFreshSnapshotAsyncReusesWithinWindow(t *testing.T) {
	up1 := aggregatorUpstream("alpha", "a")
	registry := NewStaticRegistry([]upstream.Upstream{up1}, nil)
	prober := stubProber{healthy: map[string]bool{"alpha": true}}
	fetcher := stubToolsFetcher{toolsByEndpoint: map[string][]mcpout.ToolListEntry{
		toolsListRoot(up1.Endpoint): {{Name: "search"}},
	}}

	aggregator := NewAggregator(registry, prober, fetcher, toolname.New("."), time.Hour, DefaultMaxConcurrentProbes, nil)

	first, err := aggregator.EnsureFreshSnapshotAsync(context.Background())
	require.NoError(t, err)

	second, err := aggregator.EnsureFreshSnapshotAsync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.SourceVersion, second.SourceVersion)
}

// fixedRegistry is a minimal upstream.Registry stub that bypasses
// DynamicRegistry/StaticRegistry's namespace-prefix dedup, letting a
// test construct a genuine external-name collision directly.
type fixedRegistry struct {
	upstreams []upstream.Upstream
}

func (r *fixedRegistry) GetUpstreamsAsync(ctx context.Context) ([]upstream.Upstream, error) {
	return r.upstreams, nil
}

func (r *fixedRegistry) GetAllUpstreamsAsync(ctx context.Context) ([]upstream.Upstream, error) {
	return r.upstreams, nil
}

func (r *fixedRegistry) GetByName(ctx context.Context, name string) (upstream.Upstream, error) {
	for _, u := range r.upstreams {
		if u.UpstreamName == name {
			return u, nil
		}
	}
	return upstream.Upstream{}, upstream.ErrUpstreamNotFound
}

func (r *fixedRegistry) RefreshAsync(ctx context.Context) error {
	return nil
}
