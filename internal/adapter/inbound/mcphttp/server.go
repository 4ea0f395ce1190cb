// Package mcphttp is the inbound MCP HTTP adapter: a single JSON-RPC
// endpoint (POST /mcp/v1, aliased at /mcp) that decodes requests with
// the same pkg/mcp codec the gateway uses everywhere else, dispatches
// initialize/tools/list/tools/call, and encodes a JSON-RPC response.
package mcphttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/relaygate/gateway/internal/ctxkey"
	"github.com/relaygate/gateway/internal/domain/dispatch"
	"github.com/relaygate/gateway/internal/domain/ratelimit"
	"github.com/relaygate/gateway/internal/service"
	pkgmcp "github.com/relaygate/gateway/pkg/mcp"
)

// maxRequestBodySize bounds a single inbound JSON-RPC request. The stdio
// transport's maxLineSize uses the same bound; the outbound client's
// maxResponseBodySize cap is larger (10MB).
const maxRequestBodySize = 4 * 1024 * 1024 // 4MB

// Server is the inbound MCP HTTP handler: it owns no business logic of
// its own, translating JSON-RPC requests into calls against the
// Dispatcher/Aggregator/PolicyService and encoding their results back.
type Server struct {
	dispatcher *service.Dispatcher
	aggregator *service.Aggregator
	policy     *service.PolicyService

	serverName    string
	serverVersion string

	tenantHeader string
	userHeader   string

	logger *slog.Logger
}

// NewServer builds a Server. tenantHeader/userHeader default to
// "X-Tenant-Id"/"X-User-Id" when empty.
func NewServer(dispatcher *service.Dispatcher, aggregator *service.Aggregator, policy *service.PolicyService, serverName, serverVersion, tenantHeader, userHeader string, logger *slog.Logger) *Server {
	if tenantHeader == "" {
		tenantHeader = "X-Tenant-Id"
	}
	if userHeader == "" {
		userHeader = "X-User-Id"
	}
	return &Server{
		dispatcher:    dispatcher,
		aggregator:    aggregator,
		policy:        policy,
		serverName:    serverName,
		serverVersion: serverVersion,
		tenantHeader:  tenantHeader,
		userHeader:    userHeader,
		logger:        logger,
	}
}

// Handler registers the endpoint and its /mcp alias on a fresh mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/v1", s.handlePost)
	mux.HandleFunc("/mcp", s.handlePost)
	return mux
}

// wireRequest is the inbound JSON-RPC 2.0 request envelope.
type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// wireResponse is the outbound JSON-RPC 2.0 response envelope.
type wireResponse struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any        `json:"result,omitempty"`
	Error   *wireError `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		writeJSON(w, errResponse(nil, -32600, "failed to read request body"))
		return
	}
	if len(body) > maxRequestBodySize {
		writeJSON(w, errResponse(nil, -32600, "request body too large"))
		return
	}

	correlationID := correlationIDFrom(r)
	tenantID := headerOr(r, s.tenantHeader, ratelimit.AnonymousID)
	userID := headerOr(r, s.userHeader, ratelimit.AnonymousID)
	w.Header().Set("X-Correlation-Id", correlationID)

	status, resp := s.Dispatch(r.Context(), body, tenantID, userID, correlationID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Dispatch decodes a single JSON-RPC request body and routes it through
// initialize/tools/list/tools/call, returning the HTTP status the caller
// should report (only meaningful over HTTP; stdio callers can ignore it)
// and the wire response to encode back to the caller. This is the one
// place request handling lives so the HTTP and stdio transports never
// duplicate the method switch.
func (s *Server) Dispatch(ctx context.Context, body []byte, tenantID, userID, correlationID string) (int, wireResponse) {
	msg, err := pkgmcp.WrapMessage(body, pkgmcp.ClientToServer)
	if err != nil {
		return http.StatusOK, errResponse(rawID(body), -32600, "malformed JSON-RPC request")
	}
	if !msg.IsRequest() {
		return http.StatusOK, errResponse(rawID(body), -32600, "expected a JSON-RPC request")
	}

	var req wireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusOK, errResponse(rawID(body), -32600, "malformed JSON-RPC request")
	}
	if req.JSONRPC != "2.0" {
		return http.StatusOK, errResponse(req.ID, -32600, `jsonrpc must be "2.0"`)
	}

	ctx = context.WithValue(ctx, ctxkey.CorrelationIDKey{}, correlationID)
	ctx = context.WithValue(ctx, ctxkey.TenantIDKey{}, tenantID)
	ctx = context.WithValue(ctx, ctxkey.UserIDKey{}, userID)

	switch req.Method {
	case "initialize":
		return http.StatusOK, s.initializeResult(req)
	case "tools/list":
		return http.StatusOK, s.toolsListResult(req)
	case "tools/call":
		return s.toolsCallResult(req, ctx, tenantID, userID, correlationID)
	default:
		return http.StatusOK, errResponse(req.ID, -32601, "method not found: "+req.Method)
	}
}

func (s *Server) initializeResult(req wireRequest) wireResponse {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.serverVersion,
		},
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
	})
}

// toolListEntry is the wire shape of a single tools/list entry.
type toolListEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

func (s *Server) toolsListResult(req wireRequest) wireResponse {
	snapshot := s.aggregator.GetSnapshot()
	allowedNames := s.policy.FilterAllowed(snapshot.ToolNames())
	allowed := make(map[string]struct{}, len(allowedNames))
	for _, n := range allowedNames {
		allowed[n] = struct{}{}
	}

	tools := make([]toolListEntry, 0, len(allowedNames))
	for name := range snapshot.ToolsByExternalName {
		if _, ok := allowed[name]; !ok {
			continue
		}
		td := snapshot.ToolsByExternalName[name]
		tools = append(tools, toolListEntry{
			Name:        td.ExternalToolName,
			Description: td.Description,
			InputSchema: td.InputSchema,
		})
	}
	return resultResponse(req.ID, map[string]any{"tools": tools})
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) toolsCallResult(req wireRequest, ctx context.Context, tenantID, userID, correlationID string) (int, wireResponse) {
	if len(req.Params) == 0 {
		return http.StatusOK, errResponse(req.ID, -32602, "missing params")
	}
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return http.StatusOK, errResponse(req.ID, -32602, "missing or invalid tool name")
	}

	result := s.dispatcher.CallToolAsync(ctx, service.CallToolRequest{
		ExternalToolName: params.Name,
		Arguments:        params.Arguments,
		TenantID:         tenantID,
		UserID:           userID,
		CorrelationID:    correlationID,
	})

	if !result.Success {
		if result.ErrorType == dispatch.RateLimited {
			return http.StatusTooManyRequests, errResponse(req.ID, -32602, result.ErrorMessage)
		}
		if result.ErrorType == dispatch.ToolNotFound {
			return http.StatusOK, errResponse(req.ID, -32602, result.ErrorMessage)
		}
		return http.StatusOK, resultResponse(req.ID, map[string]any{
			"isError": true,
			"content": []map[string]any{{"type": "text", "text": result.ErrorMessage}},
		})
	}

	return http.StatusOK, resultResponse(req.ID, map[string]any{
		"isError": false,
		"content": result.Content,
	})
}

func resultResponse(id json.RawMessage, result any) wireResponse {
	return wireResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errResponse(id json.RawMessage, code int, message string) wireResponse {
	return wireResponse{JSONRPC: "2.0", ID: id, Error: &wireError{Code: code, Message: message}}
}

func writeJSON(w http.ResponseWriter, resp wireResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func rawID(body []byte) json.RawMessage {
	var partial struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &partial); err != nil {
		return nil
	}
	return partial.ID
}

// correlationIDFrom reuses an inbound X-Correlation-Id header if it
// parses as a UUID, otherwise mints a fresh one, per spec.md §6.
func correlationIDFrom(r *http.Request) string {
	if h := r.Header.Get("X-Correlation-Id"); h != "" {
		if _, err := uuid.Parse(h); err == nil {
			return h
		}
	}
	return uuid.NewString()
}

func headerOr(r *http.Request, name, fallback string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return fallback
}
