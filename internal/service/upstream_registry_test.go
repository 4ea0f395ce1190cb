package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/gateway/internal/domain/upstream"
)

// fakeDiscoveryProvider returns a scripted sequence of Discover results,
// advancing one step per call; the last result repeats once exhausted.
type fakeDiscoveryProvider struct {
	results [][]upstream.Upstream
	errs    []error
	calls   int
}

func (p *fakeDiscoveryProvider) Discover(ctx context.Context) ([]upstream.Upstream, error) {
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.results[i], err
}

func (p *fakeDiscoveryProvider) Watch() upstream.ChangeToken {
	return nil
}

func demoUpstream(name, prefix string) upstream.Upstream {
	return upstream.Upstream{
		UpstreamName:    name,
		Endpoint:        "http://" + name + ".internal/mcp",
		NamespacePrefix: prefix,
		Enabled:         true,
	}
}

func TestDynamicRegistryRefreshAsyncPublishesSnapshot(t *testing.T) {
	provider := &fakeDiscoveryProvider{
		results: [][]upstream.Upstream{{demoUpstream("alpha", "a"), demoUpstream("beta", "b")}},
	}
	registry := NewDynamicRegistry(provider, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	require.NoError(t, registry.RefreshAsync(context.Background()))

	enabled, err := registry.GetUpstreamsAsync(context.Background())
	require.NoError(t, err)
	assert.Len(t, enabled, 2)

	up, err := registry.GetByName(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "a", up.NamespacePrefix)
}

func TestDynamicRegistryGetByNameNotFound(t *testing.T) {
	provider := &fakeDiscoveryProvider{results: [][]upstream.Upstream{{}}}
	registry := NewDynamicRegistry(provider, nil)

	_, err := registry.GetByName(context.Background(), "missing")
	assert.ErrorIs(t, err, upstream.ErrUpstreamNotFound)
}

func TestDynamicRegistryRefreshAsyncSkipsDuplicatesAndInvalid(t *testing.T) {
	provider := &fakeDiscoveryProvider{
		results: [][]upstream.Upstream{{
			demoUpstream("alpha", "a"),
			demoUpstream("alpha-again", "a"), // duplicate namespace prefix
			demoUpstream("alpha", "dup-name"), // duplicate upstream name
			{UpstreamName: "bad"},             // fails Validate: empty endpoint
		}},
	}
	registry := NewDynamicRegistry(provider, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	require.NoError(t, registry.RefreshAsync(context.Background()))

	all, err := registry.GetAllUpstreamsAsync(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, "alpha", all[0].UpstreamName)
}

func TestDynamicRegistryRefreshAsyncPreservesSnapshotOnDiscoveryError(t *testing.T) {
	provider := &fakeDiscoveryProvider{
		results: [][]upstream.Upstream{{demoUpstream("alpha", "a")}, nil},
		errs:    []error{nil, errors.New("discovery unreachable")},
	}
	registry := NewDynamicRegistry(provider, nil)

	require.NoError(t, registry.RefreshAsync(context.Background()))
	require.Error(t, registry.RefreshAsync(context.Background()))

	enabled, err := registry.GetUpstreamsAsync(context.Background())
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "alpha", enabled[0].UpstreamName)
}

func TestDynamicRegistryExcludesDisabledFromEnabledOnly(t *testing.T) {
	disabled := demoUpstream("gamma", "g")
	disabled.Enabled = false
	provider := &fakeDiscoveryProvider{results: [][]upstream.Upstream{{demoUpstream("alpha", "a"), disabled}}}
	registry := NewDynamicRegistry(provider, nil)

	require.NoError(t, registry.RefreshAsync(context.Background()))

	enabled, err := registry.GetUpstreamsAsync(context.Background())
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	all, err := registry.GetAllUpstreamsAsync(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStaticRegistryGetByNameAndRefreshNoop(t *testing.T) {
	registry := NewStaticRegistry([]upstream.Upstream{demoUpstream("alpha", "a")}, nil)

	up, err := registry.GetByName(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "http://alpha.internal/mcp", up.Endpoint)

	assert.NoError(t, registry.RefreshAsync(context.Background()))

	_, err = registry.GetByName(context.Background(), "missing")
	assert.ErrorIs(t, err, upstream.ErrUpstreamNotFound)
}
