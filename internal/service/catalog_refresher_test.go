package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/adapter/outbound/discovery"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/toolname"
	"github.com/relaygate/gateway/internal/domain/upstream"
)

func TestRefresherRunExitsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	up := upstream.Upstream{
		UpstreamName:    "demo",
		Endpoint:        "http://127.0.0.1:0",
		NamespacePrefix: "demo",
		Enabled:         true,
		RequestTimeout:  time.Second,
	}.WithDefaults()

	provider := discovery.NewStaticProvider([]upstream.Upstream{up})
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	registry := NewDynamicRegistry(provider, logger)

	aggregator := NewAggregator(registry, alwaysUnhealthyProber{}, noopToolsFetcher{}, toolname.New("."), time.Minute, DefaultMaxConcurrentProbes, logger)
	refresher := NewRefresher(registry, aggregator, provider, 10*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		refresher.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Refresher.Run did not exit after context cancellation")
	}
}

// testWriter adapts testing.T.Log to an io.Writer for a slog handler.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

type alwaysUnhealthyProber struct{}

func (alwaysUnhealthyProber) Probe(ctx context.Context, up upstream.Upstream) (catalog.ProbeResult, error) {
	return catalog.ProbeResult{Healthy: false, ErrorMessage: "stub: always unhealthy"}, nil
}

type noopToolsFetcher struct{}

func (noopToolsFetcher) Call(ctx context.Context, endpoint string, headers map[string]string, method string, params any) (*mcpout.RPCResponse, error) {
	return nil, context.DeadlineExceeded
}
