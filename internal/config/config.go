// Package config provides configuration types for the gateway.
//
// Configuration is file-based (YAML) with environment variable overrides
// (RELAYGATE_ prefix) and struct-tag validation. There is no database-backed
// or admin-managed configuration: every option is a value in the YAML
// document or an environment variable, loaded once at startup.
package config

import (
	"time"
)

// GatewayConfig is the top-level configuration for the gateway, per
// spec.md's configuration option table.
type GatewayConfig struct {
	// Server configures the inbound HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// ToolNameSeparator is the separator used when composing external
	// tool names from a namespace prefix and an upstream tool name.
	// Must be non-empty. Defaults to ".".
	ToolNameSeparator string `yaml:"tool_name_separator" mapstructure:"tool_name_separator" validate:"required"`

	// DenyByDefault is the fallback policy decision applied when no
	// allow or deny pattern matches a tool name.
	DenyByDefault bool `yaml:"deny_by_default" mapstructure:"deny_by_default"`

	// CatalogRefreshInterval is the background catalog refresh period.
	// Must be positive. Defaults to 5m.
	CatalogRefreshInterval time.Duration `yaml:"catalog_refresh_interval" mapstructure:"catalog_refresh_interval" validate:"omitempty,gt=0"`

	// AllowedToolPatterns, DeniedToolPatterns are wildcard pattern lists
	// evaluated by the Policy Service. No empty entries, no "?", no "**".
	AllowedToolPatterns []string `yaml:"allowed_tool_patterns" mapstructure:"allowed_tool_patterns" validate:"omitempty,dive,required,tool_pattern"`
	DeniedToolPatterns  []string `yaml:"denied_tool_patterns" mapstructure:"denied_tool_patterns" validate:"omitempty,dive,required,tool_pattern"`

	// PolicyRules are additive CEL-conditional rules layered on top of
	// the plain allow/deny pattern lists.
	PolicyRules []PolicyRuleConfig `yaml:"policy_rules" mapstructure:"policy_rules" validate:"omitempty,dive"`

	// Upstreams is the static upstream list. It is the discovery source
	// only when no dynamic discovery provider is enabled; upstreams found
	// by a provider (manifest crawl, Consul) are not configured here.
	Upstreams []UpstreamEntryConfig `yaml:"upstreams" mapstructure:"upstreams" validate:"omitempty,dive"`

	// Discovery configures the optional dynamic upstream discovery
	// providers. An enabled provider replaces the static Upstreams list
	// as the discovery source; the two are not merged.
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`

	// RateLimit configures the Rate-Limit Engine.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// TenantResolution configures the header names used to resolve
	// tenant and user identity on ingress.
	TenantResolution TenantResolutionConfig `yaml:"tenant_resolution" mapstructure:"tenant_resolution"`

	// Manifest configures this gateway's own advertised manifest,
	// served at GET /.well-known/<manifest-path>.
	Manifest ManifestConfig `yaml:"manifest" mapstructure:"manifest"`

	// Audit configures the async audit recorder.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Resiliency configures the bounded-retry policy applied to every
	// outbound tools/call.
	Resiliency ResiliencyConfig `yaml:"resiliency" mapstructure:"resiliency"`

	// DevMode enables development-friendly defaults (verbose logging,
	// permissive policy) for local iteration.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the inbound HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g. "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	// Defaults to "info". DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// StdioEnabled additionally serves the gateway over a stdio
	// transport (one JSON-RPC message per line on stdin/stdout),
	// alongside the HTTP listener.
	StdioEnabled bool `yaml:"stdio_enabled" mapstructure:"stdio_enabled"`
}

// PolicyRuleConfig defines a single CEL-conditional policy rule.
type PolicyRuleConfig struct {
	// ID is a unique, human-readable identifier for this rule.
	ID string `yaml:"id" mapstructure:"id" validate:"required"`
	// Pattern is the external-tool-name wildcard pattern this rule
	// applies to.
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"required"`
	// Condition is a CEL expression over the evaluation context
	// (tool name, arguments, tenant id, user id). Empty means
	// unconditional match.
	Condition string `yaml:"condition" mapstructure:"condition"`
	// Action is "allow" or "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// UpstreamEntryConfig configures one static upstream MCP server.
type UpstreamEntryConfig struct {
	// Name uniquely identifies this upstream.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Endpoint is the absolute http(s) URL of the upstream's MCP server.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint" validate:"required,url"`
	// NamespacePrefix is applied to every tool this upstream advertises.
	// Restricted to [A-Za-z0-9._-] and unique across enabled upstreams.
	NamespacePrefix string `yaml:"namespace_prefix" mapstructure:"namespace_prefix" validate:"required"`
	// Enabled controls whether this upstream participates in catalog
	// aggregation. Defaults to true.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`
	// RequestTimeout bounds a single outbound call to this upstream.
	// Defaults to 30s if empty.
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty"`
	// DefaultHeaders are merged into every outbound request to this
	// upstream.
	DefaultHeaders map[string]string `yaml:"default_headers" mapstructure:"default_headers"`
}

// DiscoveryConfig configures the dynamic upstream discovery providers.
type DiscoveryConfig struct {
	// ManifestCrawl configures the manifest-crawl discovery provider.
	ManifestCrawl ManifestCrawlConfig `yaml:"manifest_crawl" mapstructure:"manifest_crawl"`
	// Consul configures the Consul catalog/health discovery provider.
	Consul ConsulDiscoveryConfig `yaml:"consul" mapstructure:"consul"`
}

// ManifestCrawlConfig configures discovery by crawling a fixed list of
// candidate base URLs for a manifest endpoint.
type ManifestCrawlConfig struct {
	Enabled      bool     `yaml:"enabled" mapstructure:"enabled"`
	BaseURLs     []string `yaml:"base_urls" mapstructure:"base_urls" validate:"omitempty,dive,url"`
	ManifestPath string   `yaml:"manifest_path" mapstructure:"manifest_path"`
}

// ConsulDiscoveryConfig configures discovery via Consul's catalog and
// health HTTP API (plain net/http, no Consul client dependency).
type ConsulDiscoveryConfig struct {
	Enabled                  bool              `yaml:"enabled" mapstructure:"enabled"`
	BaseURL                  string            `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	NamespacePrefixByService map[string]string `yaml:"namespace_prefix_by_service" mapstructure:"namespace_prefix_by_service"`
}

// RateLimitConfig configures the Rate-Limit Engine (C9).
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DefaultQuotaPolicy applies when no override pattern matches.
	DefaultQuotaPolicy QuotaPolicyConfig `yaml:"default_quota_policy" mapstructure:"default_quota_policy"`
	// Overrides map an external-tool-name pattern to a distinct quota
	// policy. They are held keyed by pattern, so a repeated pattern keeps
	// its last policy, and when several patterns match one tool, which
	// override applies is not defined.
	Overrides []QuotaOverrideConfig `yaml:"overrides" mapstructure:"overrides" validate:"omitempty,dive"`
	// MaxCacheSize bounds the number of distinct rate-limit keys held
	// in memory at once (sharded LRU). Defaults to 10000.
	MaxCacheSize int `yaml:"max_cache_size" mapstructure:"max_cache_size" validate:"omitempty,min=1"`
	// CleanupInterval is how often idle entries are swept. Defaults to 5m.
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	// EntryExpiration is how long an idle entry survives before being
	// swept. Defaults to 10m.
	EntryExpiration string `yaml:"entry_expiration" mapstructure:"entry_expiration"`
}

// QuotaPolicyConfig configures a single fixed-window quota.
type QuotaPolicyConfig struct {
	// Scope is one of "global", "tenant", "user", "tool", "tenant_tool", "user_tool".
	Scope string `yaml:"scope" mapstructure:"scope" validate:"omitempty,oneof=global tenant user tool tenant_tool user_tool"`
	// PermitLimit is the number of calls allowed per window.
	PermitLimit int `yaml:"permit_limit" mapstructure:"permit_limit" validate:"omitempty,min=1"`
	// WindowMillis is the fixed-window width, in milliseconds.
	WindowMillis int64 `yaml:"window_millis" mapstructure:"window_millis" validate:"omitempty,min=1"`
}

// QuotaOverrideConfig pairs an external-tool-name pattern with a quota
// policy override.
type QuotaOverrideConfig struct {
	Pattern string            `yaml:"pattern" mapstructure:"pattern" validate:"required"`
	Policy  QuotaPolicyConfig `yaml:"policy" mapstructure:"policy"`
}

// TenantResolutionConfig configures identity-header names.
type TenantResolutionConfig struct {
	// TenantHeaderName defaults to "X-Tenant-Id".
	TenantHeaderName string `yaml:"tenant_header_name" mapstructure:"tenant_header_name"`
	// UserHeaderName defaults to "X-User-Id".
	UserHeaderName string `yaml:"user_header_name" mapstructure:"user_header_name"`
}

// ManifestConfig configures this gateway's own advertised manifest.
type ManifestConfig struct {
	// Path is the well-known path segment, served at
	// GET /.well-known/<path>. Defaults to "mcp-gateway.json".
	Path                  string   `yaml:"path" mapstructure:"path"`
	ServiceName           string   `yaml:"service_name" mapstructure:"service_name"`
	Description           string   `yaml:"description" mapstructure:"description"`
	Tags                  []string `yaml:"tags" mapstructure:"tags"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

// AuditConfig configures the async audit recorder.
type AuditConfig struct {
	ChannelSize      int    `yaml:"channel_size" mapstructure:"channel_size" validate:"omitempty,min=1"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size" validate:"omitempty,min=1"`
	FlushInterval    string `yaml:"flush_interval" mapstructure:"flush_interval"`
	SendTimeout      string `yaml:"send_timeout" mapstructure:"send_timeout"`
	WarningThreshold int    `yaml:"warning_threshold" mapstructure:"warning_threshold" validate:"omitempty,min=0,max=100"`
}

// ResiliencyConfig configures the bounded-retry policy applied to
// outbound tools/call requests.
type ResiliencyConfig struct {
	// MaxAttempts bounds the total number of attempts (1 = no retry).
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,min=1"`
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied BEFORE validation so required fields are satisfied.
func (c *GatewayConfig) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if len(c.AllowedToolPatterns) == 0 && len(c.DeniedToolPatterns) == 0 {
		c.DenyByDefault = false
	}
	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *GatewayConfig) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.ToolNameSeparator == "" {
		c.ToolNameSeparator = "."
	}
	if c.CatalogRefreshInterval <= 0 {
		c.CatalogRefreshInterval = 5 * time.Minute
	}

	if c.RateLimit.DefaultQuotaPolicy.Scope == "" {
		c.RateLimit.DefaultQuotaPolicy.Scope = "tenant"
	}
	if c.RateLimit.DefaultQuotaPolicy.PermitLimit == 0 {
		c.RateLimit.DefaultQuotaPolicy.PermitLimit = 10000
	}
	if c.RateLimit.DefaultQuotaPolicy.WindowMillis == 0 {
		c.RateLimit.DefaultQuotaPolicy.WindowMillis = (5 * time.Minute).Milliseconds()
	}
	if c.RateLimit.MaxCacheSize == 0 {
		c.RateLimit.MaxCacheSize = 10000
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "5m"
	}
	if c.RateLimit.EntryExpiration == "" {
		c.RateLimit.EntryExpiration = "10m"
	}

	if c.TenantResolution.TenantHeaderName == "" {
		c.TenantResolution.TenantHeaderName = "X-Tenant-Id"
	}
	if c.TenantResolution.UserHeaderName == "" {
		c.TenantResolution.UserHeaderName = "X-User-Id"
	}

	if c.Manifest.Path == "" {
		c.Manifest.Path = "mcp-gateway.json"
	}
	if c.Manifest.ServiceName == "" {
		c.Manifest.ServiceName = "relaygate"
	}

	if c.Audit.ChannelSize == 0 {
		c.Audit.ChannelSize = 1000
	}
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = 100
	}
	if c.Audit.FlushInterval == "" {
		c.Audit.FlushInterval = "1s"
	}
	if c.Audit.SendTimeout == "" {
		c.Audit.SendTimeout = "100ms"
	}
	if c.Audit.WarningThreshold == 0 {
		c.Audit.WarningThreshold = 80
	}

	if c.Resiliency.MaxAttempts == 0 {
		c.Resiliency.MaxAttempts = 3
	}

	if c.Discovery.ManifestCrawl.ManifestPath == "" {
		c.Discovery.ManifestCrawl.ManifestPath = c.Manifest.Path
	}
}
