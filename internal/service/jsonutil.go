package service

import (
	"encoding/json"
	"fmt"
)

// decodeResult unmarshals a JSON-RPC result payload into v, treating a
// nil/empty raw value as a no-op rather than an error (some upstreams
// omit result entirely on an empty success).
func decodeResult(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
