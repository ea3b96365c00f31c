package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/xizzxy/atlas/internal/config"
	"github.com/xizzxy/atlas/internal/control"
	"github.com/xizzxy/atlas/internal/limiter"
	"github.com/xizzxy/atlas/internal/store"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Setup logger
	logger := setupLogger(cfg.Observability.LogLevel)
	logger.Info("Starting Atlas Control Plane",
		"version", cfg.Observability.ServiceVersion,
		"address", cfg.Control.Address,
		"store", cfg.Control.Store,
		"etcd_endpoints", cfg.Etcd.Endpoints,
		"etcd_prefix", cfg.Policy.EtcdPrefix,
	)

	policies, err := newPolicyStore(cfg)
	if err != nil {
		logger.Error("Failed to create policy store", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedDefaultPolicy(ctx, cfg, policies, logger); err != nil {
		logger.Error("Failed to seed default policy", "error", err)
		os.Exit(1)
	}

	// Create control plane server
	server := control.NewServer(cfg, policies, logger)

	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start control server", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Control server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("Control plane shutdown complete")
}

func newPolicyStore(cfg *config.Config) (store.PolicyStore, error) {
	switch cfg.Control.Store {
	case config.ControlStoreEtcd:
		return store.NewEtcd(cfg.Etcd, cfg.Policy.EtcdPrefix)
	case config.ControlStoreMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown control store %q", cfg.Control.Store)
	}
}

// seedDefaultPolicy stores the built-in default policy when the store has
// none, so gateways reading from etcd can start against a fresh cluster.
func seedDefaultPolicy(ctx context.Context, cfg *config.Config, ps store.PolicyStore, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Policy.LoadTimeout)
	defer cancel()

	_, err := ps.Get(ctx, limiter.DefaultPolicy)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	p, err := ps.Put(ctx, store.Policy{
		Client: limiter.DefaultPolicy,
		Config: limiter.DefaultPolicies()[limiter.DefaultPolicy],
	})
	if err != nil {
		return err
	}
	logger.Info("Seeded default policy", "algorithm", p.Algorithm, "limit", p.Limit, "window_seconds", p.WindowSeconds)
	return nil
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
