// Package mcp provides the outbound MCP client adapter: a single
// HTTP(S) client, shared across all upstream calls, that issues one
// JSON-RPC POST per invocation.
package mcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// maxResponseBodySize bounds a single upstream response, preventing
	// OOM from a malicious or misbehaving upstream.
	maxResponseBodySize = 10 * 1024 * 1024 // 10MB
)

// RPCError mirrors a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// RPCResponse is the envelope decoded from an upstream's HTTP body.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// ToolCallResult is the shape of a tools/call result payload.
type ToolCallResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError"`
}

// ToolListEntry is a single tool as advertised by an upstream's
// tools/list response.
type ToolListEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolsListResult is the shape of a tools/list result payload.
type ToolsListResult struct {
	Tools []ToolListEntry `json:"tools"`
}

// Client is the single HTTP client factory the gateway uses to reach
// every upstream. Per spec.md §5, HTTP clients are pooled by endpoint;
// this type is that pool's sole creator — callers never construct a
// one-off http.Client per request.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a Client with a pooled transport and a TLS 1.2
// floor. requestTimeout is a default only: individual calls may pass a
// shorter per-call context deadline (the upstream's configured
// RequestTimeout).
func NewClient(requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Call sends a single JSON-RPC request to endpoint and decodes the
// response envelope. headers are merged onto the request (e.g. the
// correlation-id header); method/params build the JSON-RPC body.
func (c *Client) Call(ctx context.Context, endpoint string, headers map[string]string, method string, params any) (*RPCResponse, error) {
	body := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mcp client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mcp client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("mcp client: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("mcp client: decode response: %w", err)
	}
	return &rpcResp, nil
}

// HTTPStatusError carries the non-2xx status and body from an upstream
// call so resiliency.HTTPStatusClassifier can classify it.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// FetchManifest issues a plain GET against manifestURL, used by the
// Health Probe's first tier. Returns nil on any 2xx response.
func (c *Client) FetchManifest(ctx context.Context, manifestURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return fmt.Errorf("mcp client: build manifest request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: ""}
	}
	return nil
}
