package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xizzxy/atlas/internal/admission"
	"github.com/xizzxy/atlas/internal/clock"
	"github.com/xizzxy/atlas/internal/config"
	"github.com/xizzxy/atlas/internal/gateway"
	"github.com/xizzxy/atlas/internal/limiter"
	"github.com/xizzxy/atlas/internal/store"
	"github.com/xizzxy/atlas/internal/telemetry"
	"github.com/xizzxy/atlas/internal/usage"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Setup logger
	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Info("Starting Atlas Gateway",
		"version", cfg.Observability.ServiceVersion,
		"policy_source", cfg.Policy.Source,
		"address", cfg.Gateway.Address,
		"grpc_address", cfg.Gateway.GRPCAddress,
	)

	policies, err := loadPolicies(cfg)
	if err != nil {
		logger.Error("Failed to load policies", "error", err)
		os.Exit(1)
	}
	logger.Info("Policies loaded", "count", len(policies))

	manager, err := limiter.NewManager(clock.NewSystem(), policies)
	if err != nil {
		logger.Error("Failed to create limiter registry", "error", err)
		os.Exit(1)
	}
	counters := usage.NewCounters()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		usage.NewCollector("atlas", counters),
	)

	tp, err := telemetry.SetupTracing(cfg.Observability)
	if err != nil {
		logger.Error("Failed to setup tracing", "error", err)
		os.Exit(1)
	}

	// Create server
	server, err := gateway.NewServer(cfg, admission.NewGateway(manager, counters), logger,
		gateway.WithMetricsRegistry(registry),
		gateway.WithTracerProvider(tp),
	)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	// Start server
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
		os.Exit(1)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Tracer shutdown error", "error", err)
	}

	logger.Info("Gateway shutdown complete")
}

// loadPolicies builds the client policy table from the configured source.
// The table is fixed for the life of the process.
func loadPolicies(cfg *config.Config) (limiter.Policies, error) {
	switch cfg.Policy.Source {
	case config.PolicySourceDefault:
		return limiter.DefaultPolicies(), nil
	case config.PolicySourceFile:
		return config.LoadPolicies(cfg.Policy.File)
	case config.PolicySourceEtcd:
		etcd, err := store.NewEtcd(cfg.Etcd, cfg.Policy.EtcdPrefix)
		if err != nil {
			return nil, err
		}
		defer etcd.Close()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Policy.LoadTimeout)
		defer cancel()
		return store.LoadPolicies(ctx, etcd)
	default:
		return nil, fmt.Errorf("unknown policy source %q", cfg.Policy.Source)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
