// Package config loads the conductor configuration file.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Conductor.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	Limits    LimitsConfig    `yaml:"limits"`
	LLM       LLMConfig       `yaml:"llm"`
	Memory    MemoryConfig    `yaml:"memory"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Tools     ToolsConfig     `yaml:"tools"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

type AgentConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Mode is "free" or "restrained".
	Mode string `yaml:"mode"`

	AllowedTools StringList `yaml:"allowed_tools"`

	// RequireConfirmation and Guardrails follow Mode unless set.
	RequireConfirmation *bool `yaml:"require_confirmation"`
	Guardrails          *bool `yaml:"guardrails"`

	RunPythonInSeparateShell bool   `yaml:"run_python_in_separate_shell"`
	SystemPromptPath         string `yaml:"system_prompt_path"`
	ToolGuidePath            string `yaml:"tool_guide_path"`
}

// Restrained reports whether the agent runs in restrained mode.
func (a AgentConfig) Restrained() bool {
	return strings.EqualFold(a.Mode, ModeRestrained)
}

// ConfirmationRequired resolves require_confirmation against the mode.
func (a AgentConfig) ConfirmationRequired() bool {
	if a.RequireConfirmation != nil {
		return *a.RequireConfirmation
	}
	return a.Restrained()
}

// GuardrailsEnabled resolves guardrails against the mode.
func (a AgentConfig) GuardrailsEnabled() bool {
	if a.Guardrails != nil {
		return *a.Guardrails
	}
	return a.Restrained()
}

type LimitsConfig struct {
	MaxToolCalls   int     `yaml:"max_tool_calls"`
	MaxTimeSeconds int     `yaml:"max_time_seconds"`
	MaxTokens      int     `yaml:"max_tokens"`
	MaxCost        float64 `yaml:"max_cost"`
	MaxIterations  int     `yaml:"max_iterations"`
	MaxInputLength int     `yaml:"max_input_length"`
}

type LLMConfig struct {
	DefaultProvider   string                       `yaml:"default_provider"`
	DefaultModel      string                       `yaml:"default_model"`
	VerificationModel string                       `yaml:"verification_model"`
	FallbackChain     []string                     `yaml:"fallback_chain"`
	Providers         map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	Region       string `yaml:"region"`
}

type MemoryConfig struct {
	STMMaxTurns      int           `yaml:"stm_max_turns"`
	LTMEnabled       bool          `yaml:"ltm_enabled"`
	RetrievalEnabled bool          `yaml:"retrieval_enabled"`
	RetrievalTopK    int           `yaml:"retrieval_top_k"`
	Driver           string        `yaml:"driver"`
	DSN              string        `yaml:"dsn"`
	PruneSchedule    string        `yaml:"prune_schedule"`
	Retention        time.Duration `yaml:"retention"`
}

type AuthConfig struct {
	APIKeys     StringList    `yaml:"api_keys"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// Enabled reports whether any credential is configured.
func (a AuthConfig) Enabled() bool {
	return len(a.APIKeys) > 0 || a.JWTSecret != ""
}

type RateLimitConfig struct {
	Enabled           bool        `yaml:"enabled"`
	RequestsPerMinute int         `yaml:"requests_per_minute"`
	Burst             int         `yaml:"burst"`
	Abuse             AbuseConfig `yaml:"abuse"`
}

type AbuseConfig struct {
	BlockedKeywords []string      `yaml:"blocked_keywords"`
	Window          time.Duration `yaml:"window"`
	MaxRequests     int           `yaml:"max_requests"`
}

type ToolsConfig struct {
	Search SearchConfig `yaml:"search"`
	Python PythonConfig `yaml:"python"`
	Shell  ShellConfig  `yaml:"shell"`
}

type SearchConfig struct {
	Backend     string        `yaml:"backend"`
	SearXNGURL  string        `yaml:"searxng_url"`
	ResultCount int           `yaml:"result_count"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type PythonConfig struct {
	Interpreter string        `yaml:"interpreter"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ShellConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// StringList accepts either a YAML list or a comma-separated string.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = SplitList(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = StringList(cleanList(items))
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or comma-separated string", node.Line)
	}
}

// SplitList splits a comma-separated value, dropping blanks.
func SplitList(value string) []string {
	return cleanList(strings.Split(value, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
