// Package dispatch contains the response envelope and error taxonomy
// the Tool Dispatcher (C11) returns from callToolAsync.
package dispatch

// ErrorType enumerates every failure surface callToolAsync can return,
// per spec.md §4.11. A successful response carries no ErrorType.
type ErrorType string

const (
	InvalidArgument     ErrorType = "InvalidArgument"
	ConfigurationError  ErrorType = "ConfigurationError"
	ToolNotAllowed      ErrorType = "ToolNotAllowed"
	ToolNotFound        ErrorType = "ToolNotFound"
	UpstreamUnavailable ErrorType = "UpstreamUnavailable"
	Timeout             ErrorType = "Timeout"
	Cancelled           ErrorType = "Cancelled"
	ResiliencyFailure   ErrorType = "ResiliencyFailure"
	ParseError          ErrorType = "ParseError"
	ToolExecutionError  ErrorType = "ToolExecutionError"
	RateLimited         ErrorType = "RateLimited"
)

// Synthetic upstream names used when a failure occurs before an actual
// upstream is resolved.
const (
	UpstreamPolicyBlock = "policy-block"
	UpstreamUnknown     = "unknown"
	UpstreamRateLimit   = "rate-limit"
)

// McpToolCallResponse is the outcome of one callToolAsync invocation.
// Exactly one of Content or (ErrorType, ErrorMessage) is meaningful,
// selected by Success.
type McpToolCallResponse struct {
	Success       bool
	InvocationID  string
	CorrelationID string
	// Content holds the JSON-RPC result.content payload, opaque to the
	// gateway, on success.
	Content any
	// ErrorType classifies the failure for clients and audit records.
	ErrorType ErrorType
	// ErrorMessage is a human-readable description of the failure.
	ErrorMessage string
	// UpstreamName is the upstream this call was routed to, or one of
	// the synthetic Upstream* names if resolution failed before routing.
	UpstreamName string
}

// Success builds a successful response.
func Success(invocationID, correlationID, upstreamName string, content any) McpToolCallResponse {
	return McpToolCallResponse{
		Success:       true,
		InvocationID:  invocationID,
		CorrelationID: correlationID,
		UpstreamName:  upstreamName,
		Content:       content,
	}
}

// Failure builds a failed response.
func Failure(invocationID, correlationID, upstreamName string, errType ErrorType, message string) McpToolCallResponse {
	return McpToolCallResponse{
		Success:       false,
		InvocationID:  invocationID,
		CorrelationID: correlationID,
		UpstreamName:  upstreamName,
		ErrorType:     errType,
		ErrorMessage:  message,
	}
}
