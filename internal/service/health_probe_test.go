package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/upstream"
)

func upstreamFor(t *testing.T, srv *httptest.Server) upstream.Upstream {
	t.Helper()
	return upstream.Upstream{
		UpstreamName:    "demo",
		Endpoint:        srv.URL + "/mcp",
		NamespacePrefix: "demo",
		Enabled:         true,
		RequestTimeout:  time.Second,
	}
}

func TestHealthProbeManifestTierHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/.well-known/mcp-manifest.json" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	probe := NewHealthProbe(mcpout.NewClient(time.Second), "mcp-manifest.json")
	result, err := probe.Probe(context.Background(), upstreamFor(t, srv))

	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Equal(t, catalog.Manifest, result.Strategy)
	assert.Empty(t, result.ErrorMessage)
}

func TestHealthProbeFallsBackToToolsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/.well-known/mcp-manifest.json":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"tools":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	probe := NewHealthProbe(mcpout.NewClient(time.Second), "mcp-manifest.json")
	result, err := probe.Probe(context.Background(), upstreamFor(t, srv))

	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Equal(t, catalog.ToolsList, result.Strategy)
}

func TestHealthProbeBothTiersFailingIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	probe := NewHealthProbe(mcpout.NewClient(time.Second), "mcp-manifest.json")
	result, err := probe.Probe(context.Background(), upstreamFor(t, srv))

	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, catalog.ToolsList, result.Strategy)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestHealthProbePropagatesCallerCancellation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	probe := NewHealthProbe(mcpout.NewClient(5*time.Second), "mcp-manifest.json")
	up := upstreamFor(t, srv)
	up.RequestTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := probe.Probe(ctx, up)
	assert.ErrorIs(t, err, context.Canceled)
}
