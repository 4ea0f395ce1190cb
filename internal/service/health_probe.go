package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/upstream"
)

// HealthProbe implements the Health Probe (C6): a two-tier liveness
// check, manifest first, tools/list fallback.
type HealthProbe struct {
	client       *mcpout.Client
	manifestPath string
}

// NewHealthProbe builds a HealthProbe. manifestPath is the well-known
// suffix (e.g. "mcp-manifest.json") served at the upstream's service
// root.
func NewHealthProbe(client *mcpout.Client, manifestPath string) *HealthProbe {
	return &HealthProbe{client: client, manifestPath: manifestPath}
}

// Probe runs the two-tier check against up, bounded by up.RequestTimeout
// linked to ctx. A caller cancellation propagates as ctx.Err(); a
// timeout or any other failure yields an unhealthy ProbeResult rather
// than an error.
func (p *HealthProbe) Probe(ctx context.Context, up upstream.Upstream) (catalog.ProbeResult, error) {
	timeout := up.RequestTimeout
	if timeout <= 0 {
		timeout = upstream.DefaultRequestTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	manifestURL := manifestRoot(up.Endpoint) + "/.well-known/" + p.manifestPath
	if err := p.client.FetchManifest(probeCtx, manifestURL); err == nil {
		return catalog.ProbeResult{
			Healthy:  true,
			Latency:  time.Since(start),
			Strategy: catalog.Manifest,
		}, nil
	}

	toolsListEndpoint := toolsListRoot(up.Endpoint)
	resp, err := p.client.Call(probeCtx, toolsListEndpoint, nil, "tools/list", map[string]any{})
	if err != nil {
		if ctx.Err() != nil {
			return catalog.ProbeResult{}, ctx.Err()
		}
		return catalog.ProbeResult{
			Healthy:      false,
			Strategy:     catalog.ToolsList,
			ErrorMessage: err.Error(),
		}, nil
	}
	if resp.Error != nil {
		return catalog.ProbeResult{
			Healthy:      false,
			Strategy:     catalog.ToolsList,
			ErrorMessage: resp.Error.Error(),
		}, nil
	}

	var result mcpout.ToolsListResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return catalog.ProbeResult{
			Healthy:      false,
			Strategy:     catalog.ToolsList,
			ErrorMessage: fmt.Sprintf("malformed tools/list result: %v", err),
		}, nil
	}

	return catalog.ProbeResult{
		Healthy:  true,
		Latency:  time.Since(start),
		Strategy: catalog.ToolsList,
	}, nil
}

// manifestRoot strips a trailing "/mcp" suffix, since the manifest
// lives at the upstream's service root rather than its MCP path.
func manifestRoot(endpoint string) string {
	return strings.TrimSuffix(strings.TrimSuffix(endpoint, "/"), "/mcp")
}

// toolsListRoot appends "/v1" unless endpoint already ends in "/mcp".
func toolsListRoot(endpoint string) string {
	trimmed := strings.TrimSuffix(endpoint, "/")
	if strings.HasSuffix(trimmed, "/mcp") {
		return trimmed
	}
	return trimmed + "/v1"
}
