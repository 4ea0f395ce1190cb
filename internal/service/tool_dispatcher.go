package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	mcpout "github.com/relaygate/gateway/internal/adapter/outbound/mcp"
	"github.com/relaygate/gateway/internal/domain/audit"
	"github.com/relaygate/gateway/internal/domain/catalog"
	"github.com/relaygate/gateway/internal/domain/dispatch"
	"github.com/relaygate/gateway/internal/domain/policy"
	"github.com/relaygate/gateway/internal/domain/ratelimit"
	"github.com/relaygate/gateway/internal/domain/resiliency"
	"github.com/relaygate/gateway/internal/domain/upstream"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/relaygate/gateway/internal/service")

// CallToolRequest is the inbound request the Dispatcher acts on, already
// stripped of transport concerns.
type CallToolRequest struct {
	ExternalToolName string
	Arguments        map[string]interface{}
	TenantID         string
	UserID           string
	CorrelationID    string
}

// catalogSource is the subset of the Aggregator the dispatcher consults.
type catalogSource interface {
	GetSnapshot() catalog.Snapshot
}

// rateLimiter is the subset of the Rate-Limit Engine the dispatcher
// consults. Only tools/call requests are admitted through it.
type rateLimiter interface {
	Admit(tenantID, userID, externalTool string) ratelimit.Decision
}

// Dispatcher implements the Tool Dispatcher (C11): the orchestration of
// policy, rate limiting, catalog lookup, resiliency, and audit recording
// around a single outbound tools/call.
type Dispatcher struct {
	catalog     catalogSource
	registry    upstream.Registry
	policy      *PolicyService
	rateLimiter rateLimiter
	recorder    audit.Recorder
	client      *mcpout.Client
	maxAttempts int
	logger      *slog.Logger
}

// NewDispatcher builds a Dispatcher. rateLimiter may be nil to disable
// rate limiting entirely (equivalent to a disabled RateLimitService).
func NewDispatcher(catalog catalogSource, registry upstream.Registry, policySvc *PolicyService, rl rateLimiter, recorder audit.Recorder, client *mcpout.Client, maxAttempts int, logger *slog.Logger) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Dispatcher{
		catalog:     catalog,
		registry:    registry,
		policy:      policySvc,
		rateLimiter: rl,
		recorder:    recorder,
		client:      client,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// CallToolAsync runs the full dispatch pipeline for req, per spec.md
// §4.11, inside a tracing span tagged with the invocation's correlation
// ID.
func (d *Dispatcher) CallToolAsync(ctx context.Context, req CallToolRequest) dispatch.McpToolCallResponse {
	invocationID := uuid.NewString()
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "dispatch.tools_call",
		trace.WithAttributes(
			attribute.String("relaygate.tool", req.ExternalToolName),
			attribute.String("relaygate.correlation_id", correlationID),
			attribute.String("relaygate.invocation_id", invocationID),
			attribute.String("relaygate.tenant_id", req.TenantID),
		),
	)
	defer span.End()

	resp := d.callTool(ctx, req, invocationID, correlationID)
	if !resp.Success {
		span.SetStatus(codes.Error, resp.ErrorMessage)
		span.SetAttributes(attribute.String("relaygate.error_type", string(resp.ErrorType)))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return resp
}

// callTool runs the full dispatch pipeline for req, per spec.md §4.11:
// policy check, rate limiting, catalog lookup, health check, upstream
// config fetch, then the outbound call under a resiliency policy —
// matching spec.md §2's data-flow ordering. AuditStart is recorded
// before the policy check and every exit path, gated or not, records
// exactly one paired AuditEnd before returning.
func (d *Dispatcher) callTool(ctx context.Context, req CallToolRequest, invocationID, correlationID string) dispatch.McpToolCallResponse {
	argsSize, argsHash := audit.HashArguments(req.Arguments)
	start := time.Now()
	if d.recorder != nil {
		d.recorder.AuditStart(audit.StartEvent{
			InvocationID:  invocationID,
			Tool:          req.ExternalToolName,
			CorrelationID: correlationID,
			ArgsSize:      argsSize,
			ArgsHash:      argsHash,
		})
	}

	fail := func(upstreamName string, errType dispatch.ErrorType, message string) dispatch.McpToolCallResponse {
		resp := dispatch.Failure(invocationID, correlationID, upstreamName, errType, message)
		d.auditEnd(invocationID, correlationID, req.ExternalToolName, upstreamName, resp, time.Since(start))
		return resp
	}

	decision := d.policy.Evaluate(ctx, policy.EvaluationContext{
		ExternalToolName: req.ExternalToolName,
		Arguments:        req.Arguments,
		TenantID:         req.TenantID,
		UserID:           req.UserID,
	})
	if !decision.Allowed {
		return fail(dispatch.UpstreamPolicyBlock, dispatch.ToolNotAllowed, policyDenyMessage(decision))
	}

	if d.rateLimiter != nil {
		rl := d.rateLimiter.Admit(req.TenantID, req.UserID, req.ExternalToolName)
		if !rl.Allowed {
			return fail(dispatch.UpstreamRateLimit, dispatch.RateLimited, "rate limit exceeded for this tool")
		}
	}

	snapshot := d.catalog.GetSnapshot()
	route, ok := snapshot.Lookup(req.ExternalToolName)
	if !ok {
		return fail(dispatch.UpstreamUnknown, dispatch.ToolNotFound, fmt.Sprintf("tool %q is not in the aggregated catalog", req.ExternalToolName))
	}

	if !snapshot.IsUpstreamHealthy(route.UpstreamName) {
		return fail(route.UpstreamName, dispatch.UpstreamUnavailable, fmt.Sprintf("upstream %q is currently unhealthy", route.UpstreamName))
	}

	up, err := d.registry.GetByName(ctx, route.UpstreamName)
	if err != nil {
		return fail(route.UpstreamName, dispatch.ConfigurationError, fmt.Sprintf("upstream %q is not configured: %v", route.UpstreamName, err))
	}

	result, callErr := d.forward(ctx, up, route, req, invocationID, correlationID)
	response := d.toResponse(invocationID, correlationID, up.UpstreamName, result, callErr)
	d.auditEnd(invocationID, correlationID, req.ExternalToolName, up.UpstreamName, response, time.Since(start))
	return response
}

// auditEnd records the single AuditEnd paired with callTool's AuditStart.
// A nil recorder is a no-op, matching the dispatcher's other optional-
// collaborator checks.
func (d *Dispatcher) auditEnd(invocationID, correlationID, tool, upstreamName string, response dispatch.McpToolCallResponse, duration time.Duration) {
	if d.recorder == nil {
		return
	}
	end := audit.EndEvent{
		InvocationID:  invocationID,
		Tool:          tool,
		Upstream:      upstreamName,
		CorrelationID: correlationID,
		Success:       response.Success,
		DurationMs:    duration.Milliseconds(),
	}
	if !response.Success {
		end.ErrorType = string(response.ErrorType)
		end.ErrorMessage = response.ErrorMessage
	}
	d.recorder.AuditEnd(end)
}

// forward issues the outbound tools/call under a bounded retry policy,
// classifying each attempt's failure by HTTP status.
func (d *Dispatcher) forward(ctx context.Context, up upstream.Upstream, route catalog.ToolDescriptor, req CallToolRequest, invocationID, correlationID string) (*mcpout.RPCResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, up.RequestTimeout)
	defer cancel()

	rc := resiliency.Context{
		ExternalToolName: req.ExternalToolName,
		UpstreamName:     up.UpstreamName,
		Endpoint:         up.Endpoint,
		CorrelationID:    correlationID,
		InvocationID:     invocationID,
	}

	headers := make(map[string]string, len(up.DefaultHeaders)+1)
	for k, v := range up.DefaultHeaders {
		headers[k] = v
	}
	headers["X-Correlation-Id"] = correlationID

	retryPolicy := resiliency.NewRetryPolicy[*mcpout.RPCResponse](d.maxAttempts, classifyForward)
	return retryPolicy.Execute(callCtx, rc, func(attemptCtx context.Context, attemptRC resiliency.Context) (*mcpout.RPCResponse, error) {
		params := map[string]any{
			"name":      route.UpstreamToolName,
			"arguments": req.Arguments,
		}
		return d.client.Call(attemptCtx, toolCallRoot(up.Endpoint), headers, "tools/call", params)
	})
}

// toolCallRoot is the same root a tools/list probe uses; tools/call
// shares the upstream's single JSON-RPC entrypoint.
func toolCallRoot(endpoint string) string {
	return toolsListRoot(endpoint)
}

func classifyForward(err error) resiliency.Classification {
	if statusErr, ok := asHTTPStatusError(err); ok {
		return resiliency.HTTPStatusClassifier(statusErr.StatusCode, nil)
	}
	return resiliency.HTTPStatusClassifier(0, err)
}

func asHTTPStatusError(err error) (*mcpout.HTTPStatusError, bool) {
	statusErr, ok := err.(*mcpout.HTTPStatusError)
	return statusErr, ok
}

// toResponse translates the outcome of forward into the dispatcher's
// response envelope, per spec.md §4.11's result-shape rules.
func (d *Dispatcher) toResponse(invocationID, correlationID, upstreamName string, resp *mcpout.RPCResponse, callErr error) dispatch.McpToolCallResponse {
	if callErr != nil {
		switch {
		case isCancelled(callErr):
			return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.Cancelled, callErr.Error())
		case isTimeout(callErr):
			return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.Timeout, callErr.Error())
		default:
			return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.ResiliencyFailure, callErr.Error())
		}
	}

	if resp.Error != nil {
		return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.ErrorType(strconv.Itoa(resp.Error.Code)), resp.Error.Message)
	}

	var result mcpout.ToolCallResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.ParseError, err.Error())
	}
	if result.IsError {
		return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.ToolExecutionError, contentAsMessage(result.Content))
	}

	var content any
	if len(result.Content) > 0 {
		if err := json.Unmarshal(result.Content, &content); err != nil {
			return dispatch.Failure(invocationID, correlationID, upstreamName, dispatch.ParseError, fmt.Sprintf("malformed tool result content: %v", err))
		}
	}
	return dispatch.Success(invocationID, correlationID, upstreamName, content)
}

func contentAsMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "tool execution failed"
	}
	return string(raw)
}

func isCancelled(err error) bool {
	return errors.Is(err, resiliency.ErrCancelled)
}

func isTimeout(err error) bool {
	return errors.Is(err, resiliency.ErrTimeout)
}

func policyDenyMessage(d policy.Decision) string {
	if d.Reason != "" {
		return d.Reason
	}
	return "tool is not permitted by policy"
}
