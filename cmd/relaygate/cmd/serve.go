package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaygate/gateway/internal/adapter/inbound/admin"
	gatewayhttp "github.com/relaygate/gateway/internal/adapter/inbound/http"
	"github.com/relaygate/gateway/internal/adapter/inbound/mcphttp"
	"github.com/relaygate/gateway/internal/adapter/inbound/stdio"
	"github.com/relaygate/gateway/internal/config"
	"github.com/relaygate/gateway/internal/wiring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway's HTTP (and optional stdio) listener",
	Long: `serve loads and validates the configuration, builds the catalog
aggregator and tool dispatcher, performs an initial catalog build, then
starts serving MCP requests over HTTP (and, if enabled, stdio).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)

	rt, err := wiring.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(ensureContext(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	rt.Recorder.Start(ctx)
	defer rt.Recorder.Stop()

	if _, err := rt.Aggregator.Rebuild(ctx); err != nil {
		logger.Warn("initial catalog build failed, starting with an empty catalog", "error", err)
	}
	go rt.Refresher.Run(ctx)
	go rt.RateLimit.StartCleanup(ctx)

	mcpServer := mcphttp.NewServer(
		rt.Dispatcher, rt.Aggregator, rt.Policy,
		"relaygate", Version,
		cfg.TenantResolution.TenantHeaderName, cfg.TenantResolution.UserHeaderName,
		logger,
	)

	healthChecker := gatewayhttp.NewHealthChecker(rt.Registry, rt.Aggregator, rt.Recorder, Version)
	adminHandler := admin.NewHandler(rt.Registry, rt.Aggregator)

	mcpMux := http.NewServeMux()
	mcpMux.Handle("/", mcpServer.Handler())
	mcpMux.Handle("/.well-known/"+cfg.Manifest.Path, mcphttp.ManifestHandler(mcphttp.ManifestInfo{
		ServiceName:           cfg.Manifest.ServiceName,
		Version:               Version,
		Description:           cfg.Manifest.Description,
		Tags:                  cfg.Manifest.Tags,
		RequestTimeoutSeconds: cfg.Manifest.RequestTimeoutSeconds,
	}))

	transport := gatewayhttp.NewTransport(
		mcpMux,
		gatewayhttp.WithAddr(cfg.Server.HTTPAddr),
		gatewayhttp.WithLogger(logger),
		gatewayhttp.WithHealthChecker(healthChecker),
		gatewayhttp.WithAdminHandler(adminHandler.Mux()),
	)
	defer transport.Close()

	if cfg.Server.StdioEnabled {
		stdioTransport := stdio.NewTransport(mcpServer, "", "", logger)
		go func() {
			if err := stdioTransport.Run(ctx, os.Stdin, os.Stdout); err != nil {
				logger.Error("stdio transport exited", "error", err)
			}
		}()
	}

	logger.Info("relaygate listening", "addr", cfg.Server.HTTPAddr, "stdio_enabled", cfg.Server.StdioEnabled)
	return transport.Start(ctx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
