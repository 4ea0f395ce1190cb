package mcphttp

import (
	"encoding/json"
	"net/http"
)

// ManifestInfo is this gateway's own advertised manifest, served at
// GET /.well-known/<manifest-path> so it can itself be discovered by
// the manifest-crawl provider of another gateway instance.
type ManifestInfo struct {
	ServiceName           string   `json:"serviceName,omitempty"`
	McpHTTPEndpoint       string   `json:"mcpHttpEndpoint,omitempty"`
	NamespacePrefix       string   `json:"namespacePrefix,omitempty"`
	Version               string   `json:"version,omitempty"`
	Description           string   `json:"description,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
	RequestTimeoutSeconds int      `json:"requestTimeoutSeconds,omitempty"`
}

// ManifestHandler returns an http.HandlerFunc serving info as JSON on
// GET requests, 405 on anything else.
func ManifestHandler(info ManifestInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	}
}
