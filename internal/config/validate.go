package config

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid config"
	}
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// KnownProviders are the names llm.default_provider may take.
var KnownProviders = []string{"openrouter", "openai", "anthropic", "bedrock", "google"}

type intBound struct {
	field    string
	value    int
	min, max int
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var issues []string
	add := func(format string, args ...any) {
		issues = append(issues, fmt.Sprintf(format, args...))
	}

	bounds := []intBound{
		{"server.http_port", c.Server.HTTPPort, 1, 65535},
		{"limits.max_tool_calls", c.Limits.MaxToolCalls, 1, 100},
		{"limits.max_time_seconds", c.Limits.MaxTimeSeconds, 10, 600},
		{"limits.max_tokens", c.Limits.MaxTokens, 1000, 128000},
		{"limits.max_input_length", c.Limits.MaxInputLength, 100, 100000},
		{"memory.stm_max_turns", c.Memory.STMMaxTurns, 5, 100},
		{"memory.retrieval_top_k", c.Memory.RetrievalTopK, 1, 20},
	}
	for _, b := range bounds {
		if b.value < b.min || b.value > b.max {
			add("%s must be between %d and %d (got %d)", b.field, b.min, b.max, b.value)
		}
	}
	if c.Limits.MaxCost < 0.01 || c.Limits.MaxCost > 50 {
		add("limits.max_cost must be between 0.01 and 50 (got %g)", c.Limits.MaxCost)
	}
	if c.Limits.MaxIterations < 1 {
		add("limits.max_iterations must be positive (got %d)", c.Limits.MaxIterations)
	}

	switch strings.ToLower(c.Agent.Mode) {
	case ModeFree, ModeRestrained:
	default:
		add("agent.mode must be %q or %q (got %q)", ModeFree, ModeRestrained, c.Agent.Mode)
	}

	if !contains(KnownProviders, c.LLM.DefaultProvider) {
		add("llm.default_provider %q is not one of %s", c.LLM.DefaultProvider, strings.Join(KnownProviders, ", "))
	}
	for _, name := range c.LLM.FallbackChain {
		if !contains(KnownProviders, name) {
			add("llm.fallback_chain entry %q is not a known provider", name)
		}
	}

	switch c.Memory.Driver {
	case "sqlite", "postgres":
	default:
		add("memory.driver must be sqlite or postgres (got %q)", c.Memory.Driver)
	}
	if c.Memory.LTMEnabled && strings.TrimSpace(c.Memory.DSN) == "" {
		add("memory.dsn is required when ltm_enabled is set")
	}
	if c.Memory.PruneSchedule != "" && c.Memory.Retention <= 0 {
		add("memory.retention must be positive when prune_schedule is set")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		add("ratelimit.requests_per_minute must be positive when enabled")
	}

	switch c.Tools.Search.Backend {
	case "duckduckgo":
	case "searxng":
		if strings.TrimSpace(c.Tools.Search.SearXNGURL) == "" {
			add("tools.search.searxng_url is required for the searxng backend")
		}
	default:
		add("tools.search.backend must be duckduckgo or searxng (got %q)", c.Tools.Search.Backend)
	}
	if c.Tools.Search.ResultCount < 0 || c.Tools.Search.ResultCount > 20 {
		add("tools.search.result_count must be between 0 and 20 (got %d)", c.Tools.Search.ResultCount)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level %q is not a log level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		add("logging.format must be json or text (got %q)", c.Logging.Format)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.sampling_rate must be between 0 and 1 (got %g)", c.Tracing.SamplingRate)
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
