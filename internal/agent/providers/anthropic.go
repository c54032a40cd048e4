package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/agent/toolconv"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// AnthropicProvider implements agent.LLMProvider on the Messages API.
//
// System and developer messages are folded into the system parameter, and
// runs of tool messages become a single user turn of tool_result blocks.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	base         BaseProvider
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		base:         NewBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (p *AnthropicProvider) Name() string        { return "anthropic" }
func (p *AnthropicProvider) SupportsTools() bool { return true }

// Complete streams a message. The stream is opened eagerly so that request
// errors surface here and retryable ones are retried.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  toAnthropicMessages(conversation(req)),
		MaxTokens: int64(maxTokens(req)),
	}
	if system := systemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	var primed bool
	err := p.base.Retry(ctx, IsRetryable, func() error {
		stream = p.client.Messages.NewStreaming(ctx, params)
		primed = stream.Next()
		if !primed {
			if err := stream.Err(); err != nil {
				stream.Close()
				return p.wrapError(err, model)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, primed, chunks, model)
	return chunks, nil
}

func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], primed bool, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	var current *agent.ToolCallRequest
	var input strings.Builder
	var inputTokens, outputTokens int

	for next := primed; next; next = stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			inputTokens = int(event.AsMessageStart().Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				current = &agent.ToolCallRequest{ID: toolUse.ID, Name: toolUse.Name}
				input.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" && !send(ctx, chunks, &agent.CompletionChunk{Text: delta.Text}) {
					return
				}
			case "input_json_delta":
				input.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if current != nil {
				current.Arguments = input.String()
				if !send(ctx, chunks, &agent.CompletionChunk{ToolCall: current}) {
					return
				}
				current = nil
			}

		case "message_delta":
			if n := int(event.AsMessageDelta().Usage.OutputTokens); n > 0 {
				outputTokens = n
			}

		case "message_stop":
			send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, chunks, &agent.CompletionChunk{Error: p.wrapError(err, model), Done: true})
		return
	}
	send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
}

func toAnthropicMessages(messages []agent.CompletionMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == agent.RoleTool {
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flushResults()

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.ArgumentsMap(), tc.Name))
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == agent.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	flushResults()
	return out
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	perr := NewProviderError("anthropic", model, err)
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return perr
	}

	perr = perr.WithStatus(apiErr.StatusCode).WithRequestID(apiErr.RequestID)
	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			perr = perr.WithMessage(payload.Error.Message)
		}
		if payload.Error.Type != "" {
			perr = perr.WithCode(payload.Error.Type)
		}
		if payload.RequestID != "" {
			perr = perr.WithRequestID(payload.RequestID)
		}
	}
	return perr
}
