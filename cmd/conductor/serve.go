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
	"github.com/spf13/cobra"

	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/server"
)

// buildServeCmd creates the "serve" command that starts the HTTP API.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Conductor API server",
		Long: `Start the Conductor API server.

The server will:
1. Load configuration from the specified file (or conductor.yaml)
2. Initialize the LLM provider and its fallback chain
3. Open long-term memory when enabled
4. Register the built-in tools
5. Serve /api/v1 and /metrics, reloading the agent when the config file changes

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  conductor serve

  # Start with custom config and debug logging
  conductor serve --config /etc/conductor/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	tracer, shutdownTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger, registry, tracer)
	if err != nil {
		return err
	}
	defer a.Close()

	rt, err := a.runtime(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Info("configuration loaded",
		"config", configPath,
		"addr", cfg.Server.Addr(),
		"llm_provider", cfg.LLM.DefaultProvider,
		"mode", cfg.Agent.Mode,
		"tools", len(a.registry.List()),
	)

	srv := server.New(server.Options{
		Addr:            cfg.Server.Addr(),
		Version:         version,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Runtime:         rt,
		Auth:            authFromConfig(cfg),
		Limiter:         limiterFromConfig(cfg),
		Abuse:           abuseFromConfig(cfg),
		Metrics:         a.metrics,
		Gatherer:        registry,
		Tracer:          tracer,
		Logger:          logger,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	// Auth, rate limits and the listen address need a restart; the agent
	// runtime is swapped in place.
	if configPath != "" {
		err := config.Watch(ctx, configPath, func(next *config.Config) {
			rt, err := a.runtime(ctx, next)
			if err != nil {
				logger.Warn("keeping previous agent after reload", "error", err)
				return
			}
			srv.Reload(rt)
			logger.Info("agent reloaded", "mode", next.Agent.Mode, "llm_provider", next.LLM.DefaultProvider)
		})
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
	}

	logger.Info("Conductor started", "addr", srv.Addr())
	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	srv.Shutdown(context.Background())
	logger.Info("Conductor stopped gracefully")
	return nil
}
