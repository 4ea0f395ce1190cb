// Package admin provides the gateway's read-only operator surface: the
// current upstream roster, the aggregated tool catalog, and any
// namespace collisions the aggregator dropped on its last rebuild.
// None of these endpoints accept writes or require authentication —
// they are meant to sit behind the operator's own network perimeter.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/upstream"
	"github.com/relaygate/gateway/internal/service"
)

// Handler serves GET /admin/upstreams, /admin/catalog, /admin/conflicts.
type Handler struct {
	registry   upstream.Registry
	aggregator *service.Aggregator
}

// NewHandler builds the admin handler.
func NewHandler(registry upstream.Registry, aggregator *service.Aggregator) *Handler {
	return &Handler{registry: registry, aggregator: aggregator}
}

// Mux returns a ready-to-mount http.Handler for the /admin/ prefix.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/upstreams", h.handleUpstreams)
	mux.HandleFunc("/admin/catalog", h.handleCatalog)
	mux.HandleFunc("/admin/conflicts", h.handleConflicts)
	return mux
}

type upstreamView struct {
	Name            string `json:"name"`
	Endpoint        string `json:"endpoint"`
	NamespacePrefix string `json:"namespacePrefix"`
	Enabled         bool   `json:"enabled"`
	RequestTimeout  string `json:"requestTimeout"`
	Healthy         bool   `json:"healthy"`
}

func (h *Handler) handleUpstreams(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	ups, err := h.registry.GetAllUpstreamsAsync(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var snapshot catalog.Snapshot
	if h.aggregator != nil {
		snapshot = h.aggregator.GetSnapshot()
	}

	views := make([]upstreamView, 0, len(ups))
	for _, u := range ups {
		views = append(views, upstreamView{
			Name:            u.UpstreamName,
			Endpoint:        u.Endpoint,
			NamespacePrefix: u.NamespacePrefix,
			Enabled:         u.Enabled,
			RequestTimeout:  u.RequestTimeout.String(),
			Healthy:         snapshot.IsUpstreamHealthy(u.UpstreamName),
		})
	}
	writeJSON(w, map[string]any{"upstreams": views})
}

type toolView struct {
	Name             string `json:"name"`
	UpstreamName     string `json:"upstreamName"`
	UpstreamToolName string `json:"upstreamToolName"`
	Description      string `json:"description,omitempty"`
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	snapshot := h.aggregator.GetSnapshot()

	tools := make([]toolView, 0, len(snapshot.ToolsByExternalName))
	for name, td := range snapshot.ToolsByExternalName {
		tools = append(tools, toolView{
			Name:             name,
			UpstreamName:     td.UpstreamName,
			UpstreamToolName: td.UpstreamToolName,
			Description:      td.Description,
		})
	}
	writeJSON(w, map[string]any{
		"tools":         tools,
		"createdAt":     snapshot.CreatedAt,
		"sourceVersion": snapshot.SourceVersion,
	})
}

func (h *Handler) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	writeJSON(w, map[string]any{"conflicts": h.aggregator.LastConflicts()})
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
