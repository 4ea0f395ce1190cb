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

// manifestDocument is the shape advertised at a seed's
// /.well-known/<manifest-path>, per spec.md §6.
type manifestDocument struct {
	ServiceName           string   `json:"serviceName"`
	MCPHTTPEndpoint       string   `json:"mcpHttpEndpoint"`
	NamespacePrefix       string   `json:"namespacePrefix"`
	Version               string   `json:"version"`
	Description           string   `json:"description"`
	Tags                  []string `json:"tags"`
	RequestTimeoutSeconds int      `json:"requestTimeoutSeconds"`
}

// ManifestCrawlProvider discovers upstreams by polling a configured
// list of seed base URLs' well-known manifest documents and turning
// each into an Upstream candidate.
type ManifestCrawlProvider struct {
	seedBaseURLs []string
	manifestPath string
	client       *http.Client
	logger       *slog.Logger
}

// NewManifestCrawlProvider builds a ManifestCrawlProvider over the
// given seed base URLs (each the root of a candidate upstream, not
// including the manifest path itself).
func NewManifestCrawlProvider(seedBaseURLs []string, manifestPath string, logger *slog.Logger) *ManifestCrawlProvider {
	return &ManifestCrawlProvider{
		seedBaseURLs: seedBaseURLs,
		manifestPath: manifestPath,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// Discover fetches each seed's manifest and converts successful,
// well-formed responses into Upstream candidates. A single seed's
// failure is logged and skipped; it never aborts the crawl.
func (p *ManifestCrawlProvider) Discover(ctx context.Context) ([]upstream.Upstream, error) {
	out := make([]upstream.Upstream, 0, len(p.seedBaseURLs))
	for _, seed := range p.seedBaseURLs {
		up, err := p.fetchOne(ctx, seed)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("manifest crawl: skipping seed", "seed", seed, "error", err)
			}
			continue
		}
		out = append(out, up)
	}
	return out, nil
}

func (p *ManifestCrawlProvider) fetchOne(ctx context.Context, seed string) (upstream.Upstream, error) {
	root := strings.TrimSuffix(seed, "/")
	manifestURL := root + "/.well-known/" + p.manifestPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return upstream.Upstream{}, fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return upstream.Upstream{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstream.Upstream{}, fmt.Errorf("manifest fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return upstream.Upstream{}, fmt.Errorf("read manifest body: %w", err)
	}

	var doc manifestDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return upstream.Upstream{}, fmt.Errorf("decode manifest: %w", err)
	}

	endpoint := doc.MCPHTTPEndpoint
	if endpoint == "" {
		endpoint = root
	}
	name := doc.ServiceName
	if name == "" {
		name = root
	}

	up := upstream.Upstream{
		UpstreamName:    name,
		Endpoint:        endpoint,
		NamespacePrefix: doc.NamespacePrefix,
		Enabled:         true,
	}
	if doc.RequestTimeoutSeconds > 0 {
		up.RequestTimeout = time.Duration(doc.RequestTimeoutSeconds) * time.Second
	}
	return up.WithDefaults(), nil
}

// Watch returns nil: a manifest-crawl provider relies on the catalog
// refresher's periodic poll rather than an out-of-band signal.
func (p *ManifestCrawlProvider) Watch() upstream.ChangeToken {
	return nil
}

var _ upstream.DiscoveryProvider = (*ManifestCrawlProvider)(nil)
