package config

import "time"

const (
	ModeFree       = "free"
	ModeRestrained = "restrained"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8000,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 15 * time.Second,
		},
		Agent: AgentConfig{
			Name:         "Conductor",
			Description:  "A budget-bounded tool-using assistant.",
			Mode:         ModeFree,
			AllowedTools: StringList{"*"},
		},
		Limits: LimitsConfig{
			MaxToolCalls:   15,
			MaxTimeSeconds: 180,
			MaxTokens:      64000,
			MaxCost:        5.0,
			MaxIterations:  50,
			MaxInputLength: 10000,
		},
		LLM: LLMConfig{
			DefaultProvider:   "openrouter",
			DefaultModel:      "openai/gpt-4o-mini",
			VerificationModel: "anthropic/claude-3.5-sonnet",
			Providers:         map[string]LLMProviderConfig{},
		},
		Memory: MemoryConfig{
			STMMaxTurns:   20,
			RetrievalTopK: 5,
			Driver:        "sqlite",
			DSN:           "conductor_ltm.db",
			Retention:     30 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			TokenExpiry: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
			Abuse: AbuseConfig{
				Window:      5 * time.Minute,
				MaxRequests: 30,
			},
		},
		Tools: ToolsConfig{
			Search: SearchConfig{
				Backend:     "duckduckgo",
				ResultCount: 5,
				CacheTTL:    5 * time.Minute,
			},
			Python: PythonConfig{
				Interpreter: "python3",
				Timeout:     15 * time.Second,
			},
			Shell: ShellConfig{
				Timeout: 10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName:  "conductor",
			SamplingRate: 1.0,
		},
	}
}

// applyDefaults fills zero values a file may have cleared explicitly.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = def.Server.HTTPPort
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Agent.Mode == "" {
		cfg.Agent.Mode = def.Agent.Mode
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = def.Agent.Name
	}
	if len(cfg.Agent.AllowedTools) == 0 {
		cfg.Agent.AllowedTools = def.Agent.AllowedTools
	}
	if cfg.Limits.MaxIterations <= 0 {
		cfg.Limits.MaxIterations = def.Limits.MaxIterations
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = def.LLM.DefaultProvider
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = def.LLM.DefaultModel
	}
	if cfg.LLM.VerificationModel == "" {
		cfg.LLM.VerificationModel = def.LLM.VerificationModel
	}
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	if cfg.Memory.Driver == "" {
		cfg.Memory.Driver = def.Memory.Driver
	}
	if cfg.Memory.DSN == "" && cfg.Memory.Driver == "sqlite" {
		cfg.Memory.DSN = def.Memory.DSN
	}
	if cfg.Auth.TokenExpiry <= 0 {
		cfg.Auth.TokenExpiry = def.Auth.TokenExpiry
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.Abuse.Window <= 0 {
		cfg.RateLimit.Abuse.Window = def.RateLimit.Abuse.Window
	}
	if cfg.RateLimit.Abuse.MaxRequests <= 0 {
		cfg.RateLimit.Abuse.MaxRequests = def.RateLimit.Abuse.MaxRequests
	}
	if cfg.Tools.Search.Backend == "" {
		cfg.Tools.Search.Backend = def.Tools.Search.Backend
	}
	if cfg.Tools.Python.Interpreter == "" {
		cfg.Tools.Python.Interpreter = def.Tools.Python.Interpreter
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = def.Tracing.ServiceName
	}
}
