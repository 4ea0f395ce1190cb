// Package audit contains the start/end invocation event model recorded
// by the Audit Recorder (C10). Arguments are never logged raw: callers
// hash them with HashArguments before building a StartEvent.
package audit

import (
	"encoding/json"
	"fmt"
)

// StartEvent is emitted once per invocation before the outbound send.
type StartEvent struct {
	InvocationID  string
	Tool          string
	Upstream      string
	CorrelationID string
	ArgsSize      int
	ArgsHash      string
}

// EndEvent is emitted once per invocation after the outbound send
// completes, fails, or is abandoned.
type EndEvent struct {
	InvocationID  string
	Tool          string
	Upstream      string
	CorrelationID string
	Success       bool
	DurationMs    int64
	ErrorType     string
	ErrorMessage  string
}

// HashArguments computes the UTF-8 byte count and lowercase-hex
// simplifiedXxHash32 of the JSON-serialized arguments, for ArgsSize and
// ArgsHash. Marshal failure yields a zero size and empty hash rather
// than propagating: audit derivation must never fail the request path.
func HashArguments(arguments map[string]interface{}) (size int, hashHex string) {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return 0, ""
	}
	return len(raw), fmt.Sprintf("%08x", simplifiedXxHash32(raw))
}

// Recorder is the optional collaborator the Tool Dispatcher (C11) emits
// events to. Implementations must never let a recording failure
// propagate to the caller.
type Recorder interface {
	AuditStart(event StartEvent)
	AuditEnd(event EndEvent)
}
