package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/agent/toolconv"
	"google.golang.org/genai"
)

const defaultGoogleModel = "gemini-2.0-flash"

// GoogleConfig holds configuration for the Gemini provider.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// GoogleProvider implements agent.LLMProvider on the Gemini API.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	base         BaseProvider
}

// NewGoogleProvider creates a Gemini provider.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultGoogleModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}
	return &GoogleProvider{
		client:       client,
		defaultModel: cfg.DefaultModel,
		base:         NewBaseProvider("google", cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (p *GoogleProvider) Name() string        { return "google" }
func (p *GoogleProvider) SupportsTools() bool { return true }

// Complete streams a generation. A failed attempt is retried only while
// nothing has been forwarded to the caller.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	contents := toGeminiContents(conversation(req))
	cfg := geminiConfig(req)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var emitted bool
		var inputTokens, outputTokens int
		retryable := func(err error) bool { return !emitted && IsRetryable(err) }

		err := p.base.Retry(ctx, retryable, func() error {
			stream := p.client.Models.GenerateContentStream(ctx, model, contents, cfg)
			in, out, err := p.forward(ctx, stream, chunks, &emitted)
			inputTokens, outputTokens = in, out
			if err != nil {
				return p.wrapError(err, model)
			}
			return nil
		})
		if err != nil {
			send(ctx, chunks, &agent.CompletionChunk{Error: err, Done: true})
			return
		}
		send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
	}()
	return chunks, nil
}

func (p *GoogleProvider) forward(ctx context.Context, stream iter.Seq2[*genai.GenerateContentResponse, error], chunks chan<- *agent.CompletionChunk, emitted *bool) (int, int, error) {
	var inputTokens, outputTokens int
	for resp, err := range stream {
		if err != nil {
			return inputTokens, outputTokens, err
		}
		if ctx.Err() != nil {
			return inputTokens, outputTokens, ctx.Err()
		}
		if resp == nil {
			continue
		}
		if usage := resp.UsageMetadata; usage != nil {
			inputTokens = int(usage.PromptTokenCount)
			outputTokens = int(usage.CandidatesTokenCount)
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				chunk := geminiChunk(part)
				if chunk == nil {
					continue
				}
				*emitted = true
				if !send(ctx, chunks, chunk) {
					return inputTokens, outputTokens, ctx.Err()
				}
			}
		}
	}
	return inputTokens, outputTokens, nil
}

func geminiChunk(part *genai.Part) *agent.CompletionChunk {
	switch {
	case part == nil:
		return nil
	case part.FunctionCall != nil:
		id := part.FunctionCall.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := part.FunctionCall.Args
		if args == nil {
			args = map[string]any{}
		}
		return &agent.CompletionChunk{ToolCall: &agent.ToolCallRequest{ID: id, Name: part.FunctionCall.Name, Arguments: args}}
	case part.Text != "" && !part.Thought:
		return &agent.CompletionChunk{Text: part.Text}
	}
	return nil
}

func geminiConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(maxTokens(req), math.MaxInt32)),
	}
	if system := systemPrompt(req); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if len(req.Tools) > 0 {
		cfg.Tools = toolconv.ToGeminiTools(req.Tools)
	}
	return cfg
}

// toGeminiContents converts the conversation. Tool results are keyed by
// function name, so names are recovered from the calls that produced them,
// and consecutive results share one user turn.
func toGeminiContents(messages []agent.CompletionMessage) []*genai.Content {
	names := toolNames(messages)
	var out []*genai.Content
	var results *genai.Content

	for _, msg := range messages {
		if msg.Role == agent.RoleTool {
			name := msg.Name
			if name == "" {
				name = names[msg.ToolCallID]
			}
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.Content), &response); err != nil || response == nil {
				response = map[string]any{"result": msg.Content}
			}
			if results == nil {
				results = &genai.Content{Role: genai.RoleUser}
				out = append(out, results)
			}
			results.Parts = append(results.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{ID: msg.ToolCallID, Name: name, Response: response},
			})
			continue
		}
		results = nil

		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == agent.RoleAssistant {
			content.Role = genai.RoleModel
		}
		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.ArgumentsMap()},
			})
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

// geminiStatuses maps status words in Gemini error text to HTTP codes.
var geminiStatuses = []struct {
	needle string
	status int
}{
	{"unauthenticated", http.StatusUnauthorized},
	{"permission denied", http.StatusForbidden},
	{"permission_denied", http.StatusForbidden},
	{"resource exhausted", http.StatusTooManyRequests},
	{"resource_exhausted", http.StatusTooManyRequests},
	{"not found", http.StatusNotFound},
	{"not_found", http.StatusNotFound},
	{"unavailable", http.StatusServiceUnavailable},
	{"internal", http.StatusInternalServerError},
}

func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}
	perr := NewProviderError("google", model, err)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return perr.WithStatus(apiErr.Code).WithMessage(apiErr.Message)
	}

	text := strings.ToLower(err.Error())
	for _, s := range geminiStatuses {
		if strings.Contains(text, s.needle) {
			return perr.WithStatus(s.status)
		}
	}
	return perr
}
