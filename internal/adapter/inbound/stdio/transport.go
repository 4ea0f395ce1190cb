// Package stdio provides the stdio transport adapter for the gateway: a
// newline-delimited JSON-RPC loop over stdin/stdout for MCP clients that
// launch the gateway as a subprocess rather than speaking HTTP to it.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/relaygate/gateway/internal/adapter/inbound/mcphttp"
	"github.com/relaygate/gateway/internal/domain/ratelimit"
)

// maxLineSize bounds a single inbound JSON-RPC line, mirroring the HTTP
// transport's request body cap.
const maxLineSize = 4 * 1024 * 1024 // 4MB

// Transport reads one JSON-RPC request per line from an input stream and
// writes one JSON-RPC response per line to an output stream, delegating
// all method dispatch to the shared mcphttp.Server.Dispatch so the stdio
// and HTTP transports never duplicate routing logic.
type Transport struct {
	mcpServer *mcphttp.Server
	logger    *slog.Logger

	// tenantID/userID are fixed for the lifetime of a stdio session:
	// there is no per-request header to derive them from, so every
	// call on this transport shares one rate-limit and audit identity.
	tenantID string
	userID   string
}

// NewTransport builds a stdio Transport around a Server shared with the
// HTTP transport. tenantID/userID default to ratelimit.AnonymousID when
// empty.
func NewTransport(mcpServer *mcphttp.Server, tenantID, userID string, logger *slog.Logger) *Transport {
	if tenantID == "" {
		tenantID = ratelimit.AnonymousID
	}
	if userID == "" {
		userID = ratelimit.AnonymousID
	}
	return &Transport{
		mcpServer: mcpServer,
		logger:    logger,
		tenantID:  tenantID,
		userID:    userID,
	}
}

// Run blocks reading JSON-RPC requests from in, one per line, dispatching
// each through the shared Server and writing its response to out, also
// one per line. It returns when in reaches EOF or a write to out fails.
// ctx is checked each time a line arrives, before it is dispatched: a
// cancelled ctx makes Run return ctx.Err() at the next line, and a Run
// blocked waiting for input does not return on cancellation alone.
func (t *Transport) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
	}()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		// Copy before handing off: scanner.Bytes() is reused on the
		// next Scan.
		body := append([]byte(nil), line...)

		correlationID := uuid.NewString()
		_, resp := t.mcpServer.Dispatch(ctx, body, t.tenantID, t.userID, correlationID)

		encoded, err := json.Marshal(resp)
		if err != nil {
			if t.logger != nil {
				t.logger.Error("stdio: failed to encode response", "error", err)
			}
			continue
		}
		if _, err := out.Write(append(encoded, '\n')); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
