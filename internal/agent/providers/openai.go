package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/agent/toolconv"
	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string

	// Headers are added to every request.
	Headers map[string]string

	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// OpenAIProvider talks to any backend that speaks the OpenAI chat completions
// protocol. Message roles are passed through unchanged.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	base         BaseProvider
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	return newOpenAICompatible("openai", cfg, defaultOpenAIModel)
}

func newOpenAICompatible(name string, cfg OpenAIConfig, fallbackModel string) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(name + ": API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if len(cfg.Headers) > 0 {
		transport := httpClient.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &headerTransport{base: transport, headers: cfg.Headers}
		httpClient = &wrapped
	}
	clientCfg.HTTPClient = httpClient

	model := cfg.DefaultModel
	if model == "" {
		model = fallbackModel
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		base:         NewBaseProvider(name, cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (p *OpenAIProvider) Name() string        { return p.base.Name() }
func (p *OpenAIProvider) SupportsTools() bool { return true }

// Complete streams a chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      toOpenAIMessages(req),
		MaxTokens:     maxTokens(req),
		Temperature:   float32(req.Temperature),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var err error
		stream, err = p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return p.wrapError(err, model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

// processStream forwards text deltas as they arrive and assembles tool
// calls from their indexed fragments.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	pending := make(map[int]*agent.ToolCallRequest)
	var inputTokens, outputTokens int

	flush := func() bool {
		indexes := make([]int, 0, len(pending))
		for i := range pending {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			tc := pending[i]
			if tc.Name == "" {
				continue
			}
			if !send(ctx, chunks, &agent.CompletionChunk{ToolCall: tc}) {
				return false
			}
		}
		pending = make(map[int]*agent.ToolCallRequest)
		return true
	}

	for {
		if err := ctx.Err(); err != nil {
			send(ctx, chunks, &agent.CompletionChunk{Error: err, Done: true})
			return
		}

		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if flush() {
				send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			}
			return
		}
		if err != nil {
			send(ctx, chunks, &agent.CompletionChunk{Error: p.wrapError(err, model), Done: true})
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if !send(ctx, chunks, &agent.CompletionChunk{Text: choice.Delta.Content}) {
				return
			}
		}
		for _, fragment := range choice.Delta.ToolCalls {
			index := 0
			if fragment.Index != nil {
				index = *fragment.Index
			}
			tc := pending[index]
			if tc == nil {
				tc = &agent.ToolCallRequest{}
				pending[index] = tc
			}
			if fragment.ID != "" {
				tc.ID = fragment.ID
			}
			if fragment.Function.Name != "" {
				tc.Name = fragment.Function.Name
			}
			if fragment.Function.Arguments != "" {
				args, _ := tc.Arguments.(string)
				tc.Arguments = args + fragment.Function.Arguments
			}
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			if !flush() {
				return
			}
		}
	}
}

func toOpenAIMessages(req *agent.CompletionRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
		switch msg.Role {
		case agent.RoleAssistant:
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.ArgumentsJSON(),
					},
				})
			}
		case agent.RoleTool:
			m.ToolCallID = msg.ToolCallID
			m.Name = msg.Name
		}
		out = append(out, m)
	}
	return out
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	perr := NewProviderError(p.Name(), model, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr = perr.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			perr = perr.WithCode(code)
		} else if apiErr.Type != "" {
			perr = perr.WithCode(apiErr.Type)
		}
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return perr.WithStatus(reqErr.HTTPStatusCode)
	}
	return perr
}

// headerTransport adds fixed headers to outgoing requests.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	clone := r.Clone(r.Context())
	for k, v := range t.headers {
		if v != "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}
