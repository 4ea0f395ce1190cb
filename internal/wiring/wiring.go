// Package wiring translates a loaded config.GatewayConfig into the
// constructor arguments the service layer expects, and assembles the
// runtime object graph (registry, aggregator, policy, rate limiter,
// dispatcher, audit recorder) a transport-level command then drives.
package wiring

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/relaygate/gateway/internal/adapter/outbound/discovery"
	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/config"
	"github.com/relaygate/gateway/internal/domain/audit"
	"github.com/relaygate/gateway/internal/domain/policy"
	"github.com/relaygate/gateway/internal/domain/ratelimit"
	"github.com/relaygate/gateway/internal/domain/toolname"
	"github.com/relaygate/gateway/internal/domain/upstream"
	"github.com/relaygate/gateway/internal/service"
)

// Runtime holds every long-lived component the gateway needs to run,
// built from a validated GatewayConfig.
type Runtime struct {
	Registry   upstream.Registry
	Aggregator *service.Aggregator
	Refresher  *service.Refresher
	Policy     *service.PolicyService
	RateLimit  *service.RateLimitService
	Recorder   *service.AsyncRecorder
	Dispatcher *service.Dispatcher
	Client     *mcpout.Client
}

// Build assembles a Runtime from cfg. It does not start any background
// goroutines (Refresher.Run, AsyncRecorder.Start) or perform an initial
// catalog rebuild — the caller controls lifecycle.
func Build(cfg *config.GatewayConfig, logger *slog.Logger) (*Runtime, error) {
	upstreams, err := toDomainUpstreams(cfg.Upstreams)
	if err != nil {
		return nil, fmt.Errorf("wiring: upstreams: %w", err)
	}

	provider, err := buildDiscoveryProvider(cfg, upstreams, logger)
	if err != nil {
		return nil, fmt.Errorf("wiring: discovery: %w", err)
	}

	registry := service.NewDynamicRegistry(provider, logger)

	names := toolname.New(cfg.ToolNameSeparator)
	client := mcpout.NewClient(0)
	prober := service.NewHealthProbe(client, cfg.Manifest.Path)

	aggregator := service.NewAggregator(registry, prober, client, names, cfg.CatalogRefreshInterval, service.DefaultMaxConcurrentProbes, logger)
	refresher := service.NewRefresher(registry, aggregator, provider, cfg.CatalogRefreshInterval, logger)

	policySvc, err := service.NewPolicyService(toPolicyConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("wiring: policy: %w", err)
	}

	rlConfig, err := toRateLimitConfig(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("wiring: rate limit: %w", err)
	}
	rateLimitSvc, err := service.NewRateLimitService(rlConfig)
	if err != nil {
		return nil, fmt.Errorf("wiring: rate limit: %w", err)
	}

	recorder, err := buildAuditRecorder(cfg.Audit, logger)
	if err != nil {
		return nil, fmt.Errorf("wiring: audit: %w", err)
	}

	dispatcher := service.NewDispatcher(aggregator, registry, policySvc, rateLimitAdapter{rateLimitSvc, cfg.RateLimit.Enabled}, recorder, client, cfg.Resiliency.MaxAttempts, logger)

	return &Runtime{
		Registry:   registry,
		Aggregator: aggregator,
		Refresher:  refresher,
		Policy:     policySvc,
		RateLimit:  rateLimitSvc,
		Recorder:   recorder,
		Dispatcher: dispatcher,
		Client:     client,
	}, nil
}

// rateLimitAdapter lets rate limiting be disabled entirely from config
// without the Dispatcher needing to know about the Enabled flag.
type rateLimitAdapter struct {
	svc     *service.RateLimitService
	enabled bool
}

func (a rateLimitAdapter) Admit(tenantID, userID, externalTool string) ratelimit.Decision {
	if !a.enabled {
		return ratelimit.Decision{Allowed: true}
	}
	return a.svc.Admit(tenantID, userID, externalTool)
}

func toDomainUpstreams(entries []config.UpstreamEntryConfig) ([]upstream.Upstream, error) {
	out := make([]upstream.Upstream, 0, len(entries))
	for _, e := range entries {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		timeout := upstream.DefaultRequestTimeout
		if e.RequestTimeout != "" {
			d, err := time.ParseDuration(e.RequestTimeout)
			if err != nil {
				return nil, fmt.Errorf("upstream %q: invalid request_timeout: %w", e.Name, err)
			}
			timeout = d
		}
		u := upstream.Upstream{
			UpstreamName:    e.Name,
			Endpoint:        e.Endpoint,
			NamespacePrefix: e.NamespacePrefix,
			Enabled:         enabled,
			RequestTimeout:  timeout,
			DefaultHeaders:  e.DefaultHeaders,
		}.WithDefaults()
		if err := u.Validate(); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// buildDiscoveryProvider picks exactly one discovery provider: Consul if
// enabled, else manifest crawl if enabled, else the static upstream list
// (spec.md's baseline behavior). When a dynamic provider is picked, the
// static upstream list is not used; the two are not merged.
func buildDiscoveryProvider(cfg *config.GatewayConfig, upstreams []upstream.Upstream, logger *slog.Logger) (upstream.DiscoveryProvider, error) {
	if cfg.Discovery.Consul.Enabled {
		return discovery.NewConsulProvider(cfg.Discovery.Consul.BaseURL, cfg.Discovery.Consul.NamespacePrefixByService, logger), nil
	}
	if cfg.Discovery.ManifestCrawl.Enabled {
		manifestPath := cfg.Discovery.ManifestCrawl.ManifestPath
		if manifestPath == "" {
			manifestPath = cfg.Manifest.Path
		}
		return discovery.NewManifestCrawlProvider(cfg.Discovery.ManifestCrawl.BaseURLs, manifestPath, logger), nil
	}
	return discovery.NewStaticProvider(upstreams), nil
}

func toPolicyConfig(cfg *config.GatewayConfig) service.PolicyConfig {
	rules := make([]policy.ConditionalRule, 0, len(cfg.PolicyRules))
	for _, r := range cfg.PolicyRules {
		rules = append(rules, policy.ConditionalRule{
			ID:        r.ID,
			Pattern:   r.Pattern,
			Condition: r.Condition,
			Action:    policy.Action(r.Action),
		})
	}
	return service.PolicyConfig{
		AllowPatterns:    cfg.AllowedToolPatterns,
		DenyPatterns:     cfg.DeniedToolPatterns,
		DenyByDefault:    cfg.DenyByDefault,
		ConditionalRules: rules,
	}
}

func toRateLimitConfig(cfg config.RateLimitConfig) (service.RateLimitConfig, error) {
	cleanup, err := parseDurationOr(cfg.CleanupInterval, 5*time.Minute)
	if err != nil {
		return service.RateLimitConfig{}, err
	}
	expiration, err := parseDurationOr(cfg.EntryExpiration, 10*time.Minute)
	if err != nil {
		return service.RateLimitConfig{}, err
	}

	overrides := make(map[string]ratelimit.QuotaPolicy, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		overrides[o.Pattern] = toQuotaPolicy(o.Policy)
	}

	return service.RateLimitConfig{
		Enabled:         cfg.Enabled,
		DefaultPolicy:   toQuotaPolicy(cfg.DefaultQuotaPolicy),
		Overrides:       overrides,
		MaxCacheSize:    cfg.MaxCacheSize,
		CleanupInterval: cleanup,
		EntryExpiration: expiration,
	}, nil
}

func toQuotaPolicy(p config.QuotaPolicyConfig) ratelimit.QuotaPolicy {
	scope := ratelimit.Tenant
	if p.Scope != "" {
		scope = ratelimit.Scope(p.Scope)
	}
	return ratelimit.QuotaPolicy{
		Scope:        scope,
		PermitLimit:  p.PermitLimit,
		WindowMillis: p.WindowMillis,
	}
}

func buildAuditRecorder(cfg config.AuditConfig, logger *slog.Logger) (*service.AsyncRecorder, error) {
	flush, err := parseDurationOr(cfg.FlushInterval, time.Second)
	if err != nil {
		return nil, err
	}
	sendTimeout, err := parseDurationOr(cfg.SendTimeout, 100*time.Millisecond)
	if err != nil {
		return nil, err
	}

	downstream := audit.NewSlogRecorder(logger)
	return service.NewAsyncRecorder(downstream, logger,
		service.WithChannelSize(cfg.ChannelSize),
		service.WithBatchSize(cfg.BatchSize),
		service.WithFlushInterval(flush),
		service.WithSendTimeout(sendTimeout),
		service.WithWarningThreshold(cfg.WarningThreshold),
	), nil
}

func parseDurationOr(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
