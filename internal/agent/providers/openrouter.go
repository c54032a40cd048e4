package providers

import (
	"net/http"
	"time"
)

// DefaultOpenRouterURL is the OpenRouter API root.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

const defaultOpenRouterModel = "openai/gpt-4o-mini"

// OpenRouterConfig holds configuration for the OpenRouter provider.
type OpenRouterConfig struct {
	APIKey string

	// BaseURL overrides DefaultOpenRouterURL.
	BaseURL string

	// DefaultModel uses the provider/model form, e.g. "anthropic/claude-3.5-sonnet".
	DefaultModel string

	// AppName and SiteURL identify the caller on the OpenRouter dashboard.
	AppName string
	SiteURL string

	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// OpenRouterProvider is the default backend. OpenRouter speaks the OpenAI
// protocol, so it shares OpenAIProvider's streaming and adds app headers.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider creates an OpenRouter provider.
//
// Example:
//
//	provider, err := providers.NewOpenRouterProvider(providers.OpenRouterConfig{
//	    APIKey:  os.Getenv("OPENROUTER_API_KEY"),
//	    AppName: "conductor",
//	})
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	inner, err := newOpenAICompatible("openrouter", OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      baseURL,
		DefaultModel: cfg.DefaultModel,
		Headers: map[string]string{
			"HTTP-Referer": cfg.SiteURL,
			"X-Title":      cfg.AppName,
		},
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		HTTPClient: cfg.HTTPClient,
	}, defaultOpenRouterModel)
	if err != nil {
		return nil, err
	}
	return &OpenRouterProvider{OpenAIProvider: inner}, nil
}
