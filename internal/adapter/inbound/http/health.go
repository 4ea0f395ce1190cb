package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/relaygate/gateway/internal/domain/upstream"
	"github.com/relaygate/gateway/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health: upstream registry
// reachability and audit channel backpressure. It also reports the
// catalog's tool count, healthy-upstream count and name collisions;
// these never mark the gateway unhealthy, and the snapshot's age is not
// checked.
type HealthChecker struct {
	registry   upstream.Registry
	aggregator *service.Aggregator
	recorder   *service.AsyncRecorder
	version    string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	registry upstream.Registry,
	aggregator *service.Aggregator,
	recorder *service.AsyncRecorder,
	version string,
) *HealthChecker {
	return &HealthChecker{
		registry:   registry,
		aggregator: aggregator,
		recorder:   recorder,
		version:    version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.registry != nil {
		ups, err := h.registry.GetUpstreamsAsync(ctx)
		if err != nil {
			checks["registry"] = fmt.Sprintf("error: %s", err)
			healthy = false
		} else {
			checks["registry"] = fmt.Sprintf("ok: %d enabled upstream(s)", len(ups))
		}
	} else {
		checks["registry"] = "not configured"
	}

	if h.aggregator != nil {
		snapshot := h.aggregator.GetSnapshot()
		healthyUpstreams := 0
		for _, up := range snapshot.UpstreamHealth {
			if up {
				healthyUpstreams++
			}
		}
		checks["catalog"] = fmt.Sprintf("ok: %d tool(s), %d/%d upstream(s) healthy", len(snapshot.ToolsByExternalName), healthyUpstreams, len(snapshot.UpstreamHealth))
		if conflicts := h.aggregator.LastConflicts(); len(conflicts) > 0 {
			checks["catalog_conflicts"] = fmt.Sprintf("%d namespace collision(s)", len(conflicts))
		}
	} else {
		checks["catalog"] = "not configured"
	}

	if h.recorder != nil {
		depth := h.recorder.ChannelDepth()
		capacity := h.recorder.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.recorder.DroppedEvents(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable) // 503
		} else {
			w.WriteHeader(http.StatusOK) // 200
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
