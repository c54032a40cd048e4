package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/agent/providers"
	"github.com/haasonsaas/conductor/internal/auth"
	"github.com/haasonsaas/conductor/internal/config"
	"github.com/haasonsaas/conductor/internal/memory"
	"github.com/haasonsaas/conductor/internal/observability"
	"github.com/haasonsaas/conductor/internal/policy"
	"github.com/haasonsaas/conductor/internal/ratelimit"
	"github.com/haasonsaas/conductor/internal/server"
	"github.com/haasonsaas/conductor/internal/shell"
	"github.com/haasonsaas/conductor/internal/tools"
	"github.com/haasonsaas/conductor/internal/tools/exec"
	"github.com/haasonsaas/conductor/internal/tools/websearch"
)

// app holds the long-lived pieces that survive a config reload: memory,
// shells, the tool registry and pending confirmations. The loop itself is
// rebuilt from each new configuration.
type app struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	registry *agent.ToolRegistry
	shells   *shell.Manager
	stm      *memory.ShortTermMemory
	pending  *agent.PendingStore

	store     *memory.SQLStore
	writer    *memory.Writer
	retriever *memory.Retriever
	pruner    *memory.Pruner
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, tracer *observability.Tracer) (*app, error) {
	a := &app{
		logger:   logger,
		tracer:   tracer,
		registry: agent.NewToolRegistry(),
		stm:      memory.NewShortTermMemory(cfg.Memory.STMMaxTurns),
		pending:  agent.NewPendingStore(),
	}
	if reg != nil {
		a.metrics = observability.NewMetrics(reg)
	}
	a.shells = shell.NewManager(logger, a.metrics)

	tools.RegisterBuiltins(a.registry, tools.Deps{
		Shells: a.shells,
		Search: websearch.Config{
			Backend:     websearch.Backend(cfg.Tools.Search.Backend),
			SearXNGURL:  cfg.Tools.Search.SearXNGURL,
			ResultCount: cfg.Tools.Search.ResultCount,
			CacheTTL:    cfg.Tools.Search.CacheTTL,
		},
		Python: exec.PythonConfig{
			Interpreter:   cfg.Tools.Python.Interpreter,
			Timeout:       cfg.Tools.Python.Timeout,
			SeparateShell: cfg.Agent.RunPythonInSeparateShell,
		},
		ShellTimeout: cfg.Tools.Shell.Timeout,
		Logger:       logger,
	})

	if cfg.Memory.LTMEnabled || cfg.Memory.RetrievalEnabled {
		store, err := memory.OpenStore(ctx, memory.StoreConfig{Driver: cfg.Memory.Driver, DSN: cfg.Memory.DSN})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		a.store = store
		if cfg.Memory.LTMEnabled {
			a.writer = memory.NewWriter(store, logger)
		}
		if cfg.Memory.RetrievalEnabled {
			a.retriever = memory.NewRetriever(store, cfg.Memory.RetrievalTopK)
		}
		if cfg.Memory.Retention > 0 {
			pruner, err := memory.NewPruner(store, cfg.Memory.PruneSchedule, cfg.Memory.Retention, logger)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("memory pruner: %w", err)
			}
			a.pruner = pruner
			pruner.Start()
		}
	}
	return a, nil
}

// buildProvider creates the default provider followed by the fallback
// chain. Fallbacks that fail to initialize are skipped with a warning.
func (a *app) buildProvider(ctx context.Context, cfg *config.Config) (agent.LLMProvider, error) {
	names := append([]string{cfg.LLM.DefaultProvider}, cfg.LLM.FallbackChain...)
	seen := make(map[string]bool, len(names))
	var chain []agent.LLMProvider
	for i, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		pc := cfg.LLM.Providers[name]
		model := pc.DefaultModel
		if i == 0 && model == "" {
			model = cfg.LLM.DefaultModel
		}
		p, err := providers.New(ctx, name, providers.Settings{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: model,
			Region:       pc.Region,
			AppName:      cfg.Agent.Name,
		})
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			a.logger.Warn("skipping fallback provider", "provider", name, "error", err)
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return providers.NewFailover(a.logger, chain...), nil
}

// runtime builds the loop and request policy for cfg.
func (a *app) runtime(ctx context.Context, cfg *config.Config) (server.Runtime, error) {
	provider, err := a.buildProvider(ctx, cfg)
	if err != nil {
		return server.Runtime{}, err
	}
	return server.Runtime{
		Loop:       a.loop(cfg, provider),
		Limits:     limitsFromConfig(cfg),
		Restrained: cfg.Agent.Restrained(),
		Policy:     policy.NewEngine(cfg.Agent.AllowedTools),
	}, nil
}

func (a *app) loop(cfg *config.Config, provider agent.LLMProvider) *agent.Loop {
	var retrieval agent.Retrieval
	if a.retriever != nil {
		retrieval = a.retriever
	}
	builder := agent.NewContextBuilder(agent.ContextConfig{
		AgentName:        cfg.Agent.Name,
		AgentDescription: cfg.Agent.Description,
		SystemPromptPath: cfg.Agent.SystemPromptPath,
		ToolGuidePath:    cfg.Agent.ToolGuidePath,
	}, a.registry, a.stm, retrieval, a.logger)

	mode := agent.ModeFree
	if cfg.Agent.Restrained() {
		mode = agent.ModeRestrained
	}
	return agent.NewLoop(agent.LoopOptions{
		Provider: provider,
		Registry: a.registry,
		Builder:  builder,
		STM:      a.stm,
		Writer:   a.writer,
		Pending:  a.pending,
		Router:   providers.NewRouter(cfg.LLM.DefaultModel, cfg.LLM.VerificationModel),
		Metrics:  a.metrics,
		Tracer:   a.tracer,
		Logger:   a.logger,
	}, &agent.LoopConfig{
		Mode:                mode,
		MaxIterations:       cfg.Limits.MaxIterations,
		RequireConfirmation: cfg.Agent.ConfirmationRequired(),
		Guardrails:          cfg.Agent.GuardrailsEnabled(),
		AllowedTools:        cfg.Agent.AllowedTools,
	})
}

// Close stops the pruner and releases shells and the memory store.
func (a *app) Close() {
	if a.pruner != nil {
		a.pruner.Stop()
	}
	if a.shells != nil {
		a.shells.CloseAll()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close memory store", "error", err)
		}
	}
}

func limitsFromConfig(cfg *config.Config) agent.Limits {
	return agent.Limits{
		MaxTimeSeconds: cfg.Limits.MaxTimeSeconds,
		MaxToolCalls:   cfg.Limits.MaxToolCalls,
		MaxTokens:      cfg.Limits.MaxTokens,
		MaxCost:        cfg.Limits.MaxCost,
	}
}

func authFromConfig(cfg *config.Config) *auth.Service {
	return auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     cfg.Auth.APIKeys,
	})
}

func limiterFromConfig(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.NewLimiter(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})
}

func abuseFromConfig(cfg *config.Config) *ratelimit.AbuseChecker {
	return ratelimit.NewAbuseChecker(ratelimit.AbuseConfig{
		MaxInputLength:  cfg.Limits.MaxInputLength,
		BlockedKeywords: cfg.RateLimit.Abuse.BlockedKeywords,
		Window:          cfg.RateLimit.Abuse.Window,
		MaxRequests:     cfg.RateLimit.Abuse.MaxRequests,
	})
}

// resolveConfigPath picks the --config flag, then CONDUCTOR_CONFIG, then
// conductor.yaml when it exists. An empty result means defaults only.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("CONDUCTOR_CONFIG")); env != "" {
		return env
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}
