package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/relaygate/gateway/internal/domain/upstream"
)

// consulServiceEntry mirrors the subset of Consul's
// /v1/health/service/<name> response the provider needs.
type consulServiceEntry struct {
	Service struct {
		Address string            `json:"Address"`
		Port    int               `json:"Port"`
		Meta    map[string]string `json:"Meta"`
	} `json:"Service"`
}

// ConsulProvider discovers upstreams via Consul's plain HTTP catalog
// API (/v1/catalog/services, /v1/health/service/<name>). It is named
// only through this HTTP contract per spec.md §1 — no Consul SDK
// dependency is introduced.
type ConsulProvider struct {
	consulBaseURL   string
	namespacePrefix map[string]string // service name -> namespace prefix override
	client          *http.Client
	logger          *slog.Logger
}

// NewConsulProvider builds a ConsulProvider talking to consulBaseURL
// (e.g. "http://localhost:8500"). namespacePrefixByService overrides
// the service name used as a tool-name prefix for specific services;
// a service absent from the map uses its own name as the prefix.
func NewConsulProvider(consulBaseURL string, namespacePrefixByService map[string]string, logger *slog.Logger) *ConsulProvider {
	return &ConsulProvider{
		consulBaseURL:   strings.TrimSuffix(consulBaseURL, "/"),
		namespacePrefix: namespacePrefixByService,
		client:          &http.Client{Timeout: 10 * time.Second},
		logger:          logger,
	}
}

// Discover lists registered services, then fetches each service's
// passing health entries and turns the first one into an Upstream
// candidate. A per-service failure is logged and skipped.
func (p *ConsulProvider) Discover(ctx context.Context) ([]upstream.Upstream, error) {
	services, err := p.listServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("consul discovery: listing services: %w", err)
	}

	out := make([]upstream.Upstream, 0, len(services))
	for _, name := range services {
		up, err := p.fetchOne(ctx, name)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("consul discovery: skipping service", "service", name, "error", err)
			}
			continue
		}
		out = append(out, up)
	}
	return out, nil
}

func (p *ConsulProvider) listServices(ctx context.Context) ([]string, error) {
	body, err := p.get(ctx, p.consulBaseURL+"/v1/catalog/services")
	if err != nil {
		return nil, err
	}
	var raw map[string][]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog/services: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	return names, nil
}

func (p *ConsulProvider) fetchOne(ctx context.Context, name string) (upstream.Upstream, error) {
	body, err := p.get(ctx, fmt.Sprintf("%s/v1/health/service/%s?passing=true", p.consulBaseURL, name))
	if err != nil {
		return upstream.Upstream{}, err
	}

	var entries []consulServiceEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return upstream.Upstream{}, fmt.Errorf("decode health/service: %w", err)
	}
	if len(entries) == 0 {
		return upstream.Upstream{}, fmt.Errorf("no passing instances for service %q", name)
	}

	entry := entries[0].Service
	prefix := p.namespacePrefix[name]
	if prefix == "" {
		prefix = name
	}

	up := upstream.Upstream{
		UpstreamName:    name,
		Endpoint:        fmt.Sprintf("http://%s:%d", entry.Address, entry.Port),
		NamespacePrefix: prefix,
		Enabled:         true,
	}
	return up.WithDefaults(), nil
}

func (p *ConsulProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// Watch returns nil: Consul change-watching would require blocking
// queries, out of scope for the plain HTTP contract this provider uses.
func (p *ConsulProvider) Watch() upstream.ChangeToken {
	return nil
}

var _ upstream.DiscoveryProvider = (*ConsulProvider)(nil)
