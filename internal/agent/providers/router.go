package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/haasonsaas/conductor/internal/agent"
)

// Default model identifiers (OpenRouter form).
const (
	DefaultModel             = "openai/gpt-4o-mini"
	DefaultVerificationModel = "anthropic/claude-3.5-sonnet"
)

// Per-token cost tiers used for advisory cost accounting.
const (
	cheapTokenCost     = 0.00001
	expensiveTokenCost = 0.00015
	defaultTokenCost   = 0.00003
)

var (
	cheapModels     = []string{"gpt-4o-mini", "claude-3-haiku"}
	expensiveModels = []string{"gpt-4", "claude-3-opus"}
)

// Router picks a model for each kind of call and estimates its cost.
type Router struct {
	DefaultModel      string
	VerificationModel string
}

// NewRouter creates a router, filling empty models with the defaults.
func NewRouter(defaultModel, verificationModel string) *Router {
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	if verificationModel == "" {
		verificationModel = DefaultVerificationModel
	}
	return &Router{DefaultModel: defaultModel, VerificationModel: verificationModel}
}

// SelectModel returns the verification model for "verify" and the default
// model for every other intent.
func (r *Router) SelectModel(intent string) string {
	if intent == "verify" {
		return r.VerificationModel
	}
	return r.DefaultModel
}

// EstimateCost returns the advisory cost of tokens on model. Cheap models are
// matched first so that "gpt-4o-mini" is not priced as "gpt-4".
func (r *Router) EstimateCost(model string, tokens int) float64 {
	return float64(tokens) * tokenCost(model)
}

func tokenCost(model string) float64 {
	m := strings.ToLower(model)
	for _, name := range cheapModels {
		if strings.Contains(m, name) {
			return cheapTokenCost
		}
	}
	for _, name := range expensiveModels {
		if strings.Contains(m, name) {
			return expensiveTokenCost
		}
	}
	return defaultTokenCost
}

// Settings configures one backend by name.
type Settings struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Region       string
	AppName      string
	SiteURL      string
}

// New builds the named provider: "openrouter", "openai", "anthropic",
// "bedrock" or "google" (alias "gemini").
func New(ctx context.Context, name string, s Settings) (agent.LLMProvider, error) {
	switch strings.ToLower(name) {
	case "", "openrouter":
		return NewOpenRouterProvider(OpenRouterConfig{
			APIKey: s.APIKey, BaseURL: s.BaseURL, DefaultModel: s.DefaultModel,
			AppName: s.AppName, SiteURL: s.SiteURL,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{APIKey: s.APIKey, BaseURL: s.BaseURL, DefaultModel: s.DefaultModel})
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{APIKey: s.APIKey, BaseURL: s.BaseURL, DefaultModel: s.DefaultModel})
	case "bedrock":
		return NewBedrockProvider(ctx, BedrockConfig{Region: s.Region, DefaultModel: s.DefaultModel})
	case "google", "gemini":
		return NewGoogleProvider(ctx, GoogleConfig{APIKey: s.APIKey, DefaultModel: s.DefaultModel})
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]agent.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]agent.LLMProvider)}
}

// Register adds or replaces a provider under its own name.
func (r *Registry) Register(p agent.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (agent.LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailoverProvider tries each backend in order, moving to the next one when
// opening the stream fails with an error that ShouldFailover accepts.
type FailoverProvider struct {
	chain  []agent.LLMProvider
	logger *slog.Logger
}

// NewFailover creates a failover chain. The first provider is the primary.
func NewFailover(logger *slog.Logger, chain ...agent.LLMProvider) *FailoverProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverProvider{chain: chain, logger: logger}
}

func (f *FailoverProvider) Name() string {
	if len(f.chain) == 0 {
		return "failover"
	}
	return f.chain[0].Name()
}

func (f *FailoverProvider) SupportsTools() bool {
	for _, p := range f.chain {
		if !p.SupportsTools() {
			return false
		}
	}
	return len(f.chain) > 0
}

// Complete returns the first stream that opens. Model names are provider
// specific, so fallbacks use their own default model.
func (f *FailoverProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if len(f.chain) == 0 {
		return nil, agent.ErrNoProvider
	}
	var errs []error
	for i, p := range f.chain {
		attempt := req
		if i > 0 {
			clone := *req
			clone.Model = ""
			attempt = &clone
		}
		ch, err := p.Complete(ctx, attempt)
		if err == nil {
			return ch, nil
		}
		errs = append(errs, err)
		if !ShouldFailover(err) {
			break
		}
		f.logger.WarnContext(ctx, "provider failed, trying next", "provider", p.Name(), "error", err)
	}
	return nil, errors.Join(errs...)
}
