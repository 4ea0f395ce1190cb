package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaygate/gateway/internal/domain/upstream"
)

// Refresher implements the Catalog Refresher (C12): a background loop
// that periodically calls the aggregator's freshness-checked rebuild
// path, also waking early when a discovery provider's change token
// fires. A failed refresh is logged but never stops the loop.
type Refresher struct {
	registry   upstream.Registry
	aggregator *Aggregator
	provider   upstream.DiscoveryProvider
	interval   time.Duration
	logger     *slog.Logger
}

// NewRefresher builds a Refresher. provider may be nil if the registry
// never signals out-of-band changes (a static configuration).
func NewRefresher(registry upstream.Registry, aggregator *Aggregator, provider upstream.DiscoveryProvider, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Refresher{registry: registry, aggregator: aggregator, provider: provider, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. On every tick and on every discovery
// change-token fire it refreshes the registry and then asks the
// aggregator for a fresh snapshot; the catalog is rebuilt only when the
// current snapshot is older than the aggregator's freshness window.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var changeToken upstream.ChangeToken
	if r.provider != nil {
		changeToken = r.provider.Watch()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce(ctx)
		case <-changeToken:
			r.refreshOnce(ctx)
			if r.provider != nil {
				changeToken = r.provider.Watch()
			}
		}
	}
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	if err := r.registry.RefreshAsync(ctx); err != nil {
		if r.logger != nil {
			r.logger.Warn("upstream registry refresh failed", "error", err)
		}
		return
	}
	if _, err := r.aggregator.EnsureFreshSnapshotAsync(ctx); err != nil {
		if r.logger != nil {
			r.logger.Warn("catalog refresh failed", "error", err)
		}
	}
}
