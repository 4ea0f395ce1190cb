// Package catalog contains the immutable aggregated-tool-catalog data
// model published by the Catalog Aggregator (C7) and consulted by the
// Tool Dispatcher (C11).
package catalog

import (
	"encoding/json"
	"time"
)

// ToolDescriptor is a single advertised tool, keyed by ExternalToolName in
// a Snapshot.
type ToolDescriptor struct {
	// ExternalToolName is the namespaced name clients see: always
	// namespacePrefix+separator+UpstreamToolName, even if UpstreamToolName
	// already contains the separator.
	ExternalToolName string
	// UpstreamName identifies which upstream owns this tool.
	UpstreamName string
	// UpstreamToolName is the tool's name as the upstream itself exposes
	// it (pre-namespacing).
	UpstreamToolName string
	// Description is the human-readable tool description.
	Description string
	// InputSchema is the tool's opaque JSON Schema blob, passed through
	// unmodified.
	InputSchema json.RawMessage
}

// ProbeStrategy identifies which health-check tier produced a ProbeResult.
type ProbeStrategy int

const (
	// Manifest indicates the well-known manifest document answered.
	Manifest ProbeStrategy = iota
	// ToolsList indicates the fallback JSON-RPC tools/list probe answered.
	ToolsList
)

// String implements fmt.Stringer.
func (s ProbeStrategy) String() string {
	switch s {
	case Manifest:
		return "manifest"
	case ToolsList:
		return "tools_list"
	default:
		return "unknown"
	}
}

// ProbeResult is the outcome of a single health check (C6). A healthy
// result has Latency >= 0, a Strategy of whichever tier answered, and an
// empty ErrorMessage. An unhealthy result has Latency == 0, Strategy set
// to whichever tier was last attempted, and a non-empty ErrorMessage.
type ProbeResult struct {
	Healthy      bool
	Latency      time.Duration
	Strategy     ProbeStrategy
	ErrorMessage string
}

// Snapshot is an immutable, point-in-time aggregated catalog. Once
// constructed it is never mutated; a rebuild always produces a brand-new
// Snapshot that replaces the published one with a single atomic write.
type Snapshot struct {
	CreatedAt time.Time
	// ToolsByExternalName maps each tool's external name to its
	// descriptor. Keys are unique; insertion order is irrelevant.
	ToolsByExternalName map[string]ToolDescriptor
	// UpstreamHealth maps upstream name to its last-probed health. Every
	// ToolDescriptor's UpstreamName is guaranteed present here.
	UpstreamHealth map[string]bool
	// SourceVersion is an opaque token identifying the discovery
	// generation this snapshot was built from.
	SourceVersion string
}

// Empty returns a zero-tool Snapshot, useful as the initial value before
// the first successful refresh.
func Empty(sourceVersion string) Snapshot {
	return Snapshot{
		CreatedAt:           time.Time{},
		ToolsByExternalName: map[string]ToolDescriptor{},
		UpstreamHealth:      map[string]bool{},
		SourceVersion:       sourceVersion,
	}
}

// Lookup returns the ToolDescriptor for externalName, if present.
func (s Snapshot) Lookup(externalName string) (ToolDescriptor, bool) {
	td, ok := s.ToolsByExternalName[externalName]
	return td, ok
}

// IsUpstreamHealthy reports the last-probed health for upstreamName.
// Returns false if the upstream is unknown to this snapshot.
func (s Snapshot) IsUpstreamHealthy(upstreamName string) bool {
	return s.UpstreamHealth[upstreamName]
}

// ToolNames returns every external tool name in the snapshot, for
// tools/list responses and policy filtering.
func (s Snapshot) ToolNames() []string {
	names := make([]string, 0, len(s.ToolsByExternalName))
	for name := range s.ToolsByExternalName {
		names = append(names, name)
	}
	return names
}
