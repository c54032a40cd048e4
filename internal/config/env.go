package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONDUCTOR_"

// providerKeyEnv fills provider API keys from the usual vendor variables.
var providerKeyEnv = map[string]string{
	"openrouter": "OPENROUTER_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"google":     "GEMINI_API_KEY",
}

// applyEnvOverrides applies CONDUCTOR_* variables on top of the file.
func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(name string) (string, bool) {
		v := strings.TrimSpace(getenv(EnvPrefix + name))
		return v, v != ""
	}
	var errs []string
	setInt := func(name string, dst *int) {
		if v, ok := env(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: invalid integer %q", EnvPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(name string, dst *bool) {
		if v, ok := env(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: invalid boolean %q", EnvPrefix, name, v))
				return
			}
			*dst = b
		}
	}
	setBoolPtr := func(name string, dst **bool) {
		var b bool
		before := len(errs)
		if _, ok := env(name); !ok {
			return
		}
		setBool(name, &b)
		if len(errs) == before {
			*dst = &b
		}
	}
	setString := func(name string, dst *string) {
		if v, ok := env(name); ok {
			*dst = v
		}
	}

	setString("HOST", &cfg.Server.Host)
	setInt("HTTP_PORT", &cfg.Server.HTTPPort)

	setString("AGENT_NAME", &cfg.Agent.Name)
	setString("AGENT_MODE", &cfg.Agent.Mode)
	if v, ok := env("ALLOWED_TOOLS"); ok {
		cfg.Agent.AllowedTools = SplitList(v)
	}
	setBoolPtr("REQUIRE_CONFIRMATION", &cfg.Agent.RequireConfirmation)
	setBoolPtr("GUARDRAILS", &cfg.Agent.Guardrails)
	setBool("RUN_PYTHON_IN_SEPARATE_SHELL", &cfg.Agent.RunPythonInSeparateShell)

	setInt("MAX_TOOL_CALLS", &cfg.Limits.MaxToolCalls)
	setInt("MAX_TIME_SECONDS", &cfg.Limits.MaxTimeSeconds)
	setInt("MAX_TOKENS", &cfg.Limits.MaxTokens)
	setInt("MAX_INPUT_LENGTH", &cfg.Limits.MaxInputLength)
	if v, ok := env("MAX_COST"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sMAX_COST: invalid number %q", EnvPrefix, v))
		} else {
			cfg.Limits.MaxCost = f
		}
	}

	setString("DEFAULT_PROVIDER", &cfg.LLM.DefaultProvider)
	setString("DEFAULT_MODEL", &cfg.LLM.DefaultModel)
	setString("VERIFICATION_MODEL", &cfg.LLM.VerificationModel)

	setBool("LTM_ENABLED", &cfg.Memory.LTMEnabled)
	setBool("RETRIEVAL_ENABLED", &cfg.Memory.RetrievalEnabled)
	setString("MEMORY_DRIVER", &cfg.Memory.Driver)
	setString("MEMORY_DSN", &cfg.Memory.DSN)

	if v, ok := env("API_KEYS"); ok {
		cfg.Auth.APIKeys = SplitList(v)
	}
	setString("JWT_SECRET", &cfg.Auth.JWTSecret)
	setBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)
	setString("TRACING_ENDPOINT", &cfg.Tracing.Endpoint)

	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	for name, key := range providerKeyEnv {
		value := strings.TrimSpace(getenv(key))
		if value == "" {
			continue
		}
		pc, exists := cfg.LLM.Providers[name]
		if !exists && name != "openrouter" && name != cfg.LLM.DefaultProvider {
			continue
		}
		if pc.APIKey == "" {
			pc.APIKey = value
			cfg.LLM.Providers[name] = pc
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Issues: errs}
	}
	return nil
}
