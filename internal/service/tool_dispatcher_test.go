package service

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/dispatch"
	"github.com/relaygate/gateway/internal/domain/ratelimit"
	"github.com/relaygate/gateway/internal/domain/upstream"
)

// fixedCatalog is a catalogSource stub returning a fixed snapshot.
type fixedCatalog struct {
	snapshot catalog.Snapshot
}

func (c fixedCatalog) GetSnapshot() catalog.Snapshot {
	return c.snapshot
}

// scriptedRateLimiter returns a fixed admission decision regardless of
// the caller/tool, so a test can force the rate-limited branch.
type scriptedRateLimiter struct {
	allowed bool
}

func (l scriptedRateLimiter) Admit(tenantID, userID, externalTool string) ratelimit.Decision {
	return ratelimit.Decision{Allowed: l.allowed}
}

func snapshotWith(route catalog.ToolDescriptor, healthy bool) catalog.Snapshot {
	return catalog.Snapshot{
		CreatedAt:           time.Now(),
		ToolsByExternalName: map[string]catalog.ToolDescriptor{route.ExternalToolName: route},
		UpstreamHealth:      map[string]bool{route.UpstreamName: healthy},
	}
}

func openPolicy(t *testing.T) *PolicyService {
	t.Helper()
	svc, err := NewPolicyService(PolicyConfig{})
	require.NoError(t, err)
	return svc
}

func newTestDispatcher(t *testing.T, catalogSrc catalogSource, registry upstream.Registry, policySvc *PolicyService, rl rateLimiter, recorder *capturingRecorder) *Dispatcher {
	t.Helper()
	return NewDispatcher(catalogSrc, registry, policySvc, rl, recorder, mcpout.NewClient(time.Second), 1, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
}

func TestDispatcherPolicyDenyRecordsOnePairedAuditEvent(t *testing.T) {
	recorder := &capturingRecorder{}
	svc, err := NewPolicyService(PolicyConfig{DenyPatterns: []string{"*"}})
	require.NoError(t, err)

	d := newTestDispatcher(t, fixedCatalog{}, &fixedRegistry{}, svc, scriptedRateLimiter{allowed: true}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "search.query"})

	assert.False(t, resp.Success)
	assert.Equal(t, dispatch.ToolNotAllowed, resp.ErrorType)

	starts, ends := recorder.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestDispatcherRateLimitedTakesPrecedenceOverUnknownTool(t *testing.T) {
	recorder := &capturingRecorder{}
	// Empty catalog: the tool is genuinely unknown. Before the fix this
	// would have been misclassified as ToolNotFound because the rate
	// limiter ran after catalog lookup.
	d := newTestDispatcher(t, fixedCatalog{snapshot: catalog.Empty("")}, &fixedRegistry{}, openPolicy(t), scriptedRateLimiter{allowed: false}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "unknown.tool"})

	assert.False(t, resp.Success)
	assert.Equal(t, dispatch.RateLimited, resp.ErrorType)

	starts, ends := recorder.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestDispatcherRateLimitedTakesPrecedenceOverUnhealthyUpstream(t *testing.T) {
	recorder := &capturingRecorder{}
	route := catalog.ToolDescriptor{ExternalToolName: "a.search", UpstreamName: "alpha", UpstreamToolName: "search"}
	snapshot := snapshotWith(route, false) // unhealthy

	d := newTestDispatcher(t, fixedCatalog{snapshot: snapshot}, &fixedRegistry{}, openPolicy(t), scriptedRateLimiter{allowed: false}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "a.search"})

	assert.False(t, resp.Success)
	assert.Equal(t, dispatch.RateLimited, resp.ErrorType)
}

func TestDispatcherToolNotFoundRecordsOnePairedAuditEvent(t *testing.T) {
	recorder := &capturingRecorder{}
	d := newTestDispatcher(t, fixedCatalog{snapshot: catalog.Empty("")}, &fixedRegistry{}, openPolicy(t), scriptedRateLimiter{allowed: true}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "missing.tool"})

	assert.False(t, resp.Success)
	assert.Equal(t, dispatch.ToolNotFound, resp.ErrorType)

	starts, ends := recorder.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestDispatcherUpstreamUnhealthyRecordsOnePairedAuditEvent(t *testing.T) {
	recorder := &capturingRecorder{}
	route := catalog.ToolDescriptor{ExternalToolName: "a.search", UpstreamName: "alpha", UpstreamToolName: "search"}
	snapshot := snapshotWith(route, false)

	d := newTestDispatcher(t, fixedCatalog{snapshot: snapshot}, &fixedRegistry{}, openPolicy(t), scriptedRateLimiter{allowed: true}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "a.search"})

	assert.False(t, resp.Success)
	assert.Equal(t, dispatch.UpstreamUnavailable, resp.ErrorType)

	starts, ends := recorder.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestDispatcherRegistryFetchErrorRecordsOnePairedAuditEvent(t *testing.T) {
	recorder := &capturingRecorder{}
	route := catalog.ToolDescriptor{ExternalToolName: "a.search", UpstreamName: "alpha", UpstreamToolName: "search"}
	snapshot := snapshotWith(route, true)

	// The registry knows nothing about "alpha": GetByName fails even
	// though the snapshot believes it is healthy.
	d := newTestDispatcher(t, fixedCatalog{snapshot: snapshot}, &fixedRegistry{}, openPolicy(t), scriptedRateLimiter{allowed: true}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "a.search"})

	assert.False(t, resp.Success)
	assert.Equal(t, dispatch.ConfigurationError, resp.ErrorType)

	starts, ends := recorder.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestDispatcherSuccessfulForwardRecordsOnePairedAuditEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"content":{"ok":true},"isError":false}}`))
	}))
	defer srv.Close()

	up := upstream.Upstream{UpstreamName: "alpha", Endpoint: srv.URL + "/mcp", NamespacePrefix: "a", Enabled: true, RequestTimeout: time.Second}
	route := catalog.ToolDescriptor{ExternalToolName: "a.search", UpstreamName: "alpha", UpstreamToolName: "search"}
	snapshot := snapshotWith(route, true)
	registry := NewStaticRegistry([]upstream.Upstream{up}, nil)

	recorder := &capturingRecorder{}
	d := newTestDispatcher(t, fixedCatalog{snapshot: snapshot}, registry, openPolicy(t), scriptedRateLimiter{allowed: true}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "a.search", Arguments: map[string]interface{}{"q": "hi"}})

	require.True(t, resp.Success)
	assert.Equal(t, "alpha", resp.UpstreamName)

	starts, ends := recorder.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestDispatcherForwardErrorRecordsOnePairedAuditEventWithFailureDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	up := upstream.Upstream{UpstreamName: "alpha", Endpoint: srv.URL + "/mcp", NamespacePrefix: "a", Enabled: true, RequestTimeout: time.Second}
	route := catalog.ToolDescriptor{ExternalToolName: "a.search", UpstreamName: "alpha", UpstreamToolName: "search"}
	snapshot := snapshotWith(route, true)
	registry := NewStaticRegistry([]upstream.Upstream{up}, nil)

	recorder := &capturingRecorder{}
	d := newTestDispatcher(t, fixedCatalog{snapshot: snapshot}, registry, openPolicy(t), scriptedRateLimiter{allowed: true}, recorder)

	resp := d.CallToolAsync(context.Background(), CallToolRequest{ExternalToolName: "a.search"})

	assert.False(t, resp.Success)
	assert.Equal(t, "alpha", resp.UpstreamName)

	starts, ends := recorder.counts()
	require.Equal(t, 1, starts)
	require.Equal(t, 1, ends)
	recorder.mu.Lock()
	end := recorder.ends[0]
	recorder.mu.Unlock()
	assert.False(t, end.Success)
	assert.NotEmpty(t, end.ErrorType)
}
