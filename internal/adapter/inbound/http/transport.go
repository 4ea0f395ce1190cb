// Package http provides shared inbound HTTP middleware (request ID
// enrichment, CORS/DNS-rebinding protection, metrics). Transport applies
// it to the mcphttp endpoint only; the admin, health and metrics routes
// are mounted without it.
package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transport is the top-level inbound HTTP server: it owns the listener
// and wires the MCP JSON-RPC handler, the read-only admin handler, the
// health check, and Prometheus metrics onto a single mux.
type Transport struct {
	mcpHandler     http.Handler
	adminHandler   http.Handler
	healthChecker  *HealthChecker
	server         *http.Server
	addr           string
	allowedOrigins []string
	certFile       string
	keyFile        string
	logger         *slog.Logger
	metrics        *Metrics
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address for the HTTP server. Default is
// "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) { t.addr = addr }
}

// WithTLS enables TLS with the provided certificate and key files. If
// not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding
// protection. If empty, all requests with an Origin header are blocked
// (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(t *Transport) { t.allowedOrigins = origins }
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithAdminHandler mounts h under /admin/.
func WithAdminHandler(h http.Handler) Option {
	return func(t *Transport) { t.adminHandler = h }
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) { t.healthChecker = hc }
}

// NewTransport creates an HTTP transport adapter wrapping mcpHandler
// (normally a *mcphttp.Server's Handler()).
func NewTransport(mcpHandler http.Handler, opts ...Option) *Transport {
	t := &Transport{
		mcpHandler:     mcpHandler,
		addr:           "127.0.0.1:8080",
		allowedOrigins: []string{},
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins accepting HTTP connections. It blocks until the context
// is cancelled or an error occurs.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)

	// Middleware order (outermost first): Metrics -> RequestID -> DNSRebinding -> handler.
	handler := DNSRebindingProtection(t.allowedOrigins)(t.mcpHandler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)

	mux := http.NewServeMux()
	if t.adminHandler != nil {
		mux.Handle("/admin/", t.adminHandler)
	}
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("/", handler)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}
	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
