package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/agent/toolconv"
)

const (
	defaultBedrockRegion = "us-east-1"
	defaultBedrockModel  = "anthropic.claude-3-sonnet-20240229-v1:0"
)

// BedrockConfig holds configuration for the Bedrock provider. Static
// credentials are optional; without them the default AWS chain is used.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
}

type converseStreamer interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// BedrockProvider implements agent.LLMProvider on the Bedrock Converse API.
type BedrockProvider struct {
	client       converseStreamer
	defaultModel string
	base         BaseProvider
}

// NewBedrockProvider loads the AWS configuration and creates the provider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = defaultBedrockRegion
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaultBedrockModel
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		base:         NewBaseProvider("bedrock", cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

func (p *BedrockProvider) Name() string        { return "bedrock" }
func (p *BedrockProvider) SupportsTools() bool { return true }

// Complete streams a Converse response.
func (p *BedrockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	if p.client == nil {
		return nil, NewProviderError("bedrock", model, errors.New("client not initialized"))
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: toBedrockMessages(conversation(req)),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(min(maxTokens(req), math.MaxInt32))),
		},
	}
	if req.Temperature > 0 {
		input.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}
	if system := systemPrompt(req); system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if len(req.Tools) > 0 {
		input.ToolConfig = toolconv.ToBedrockTools(req.Tools)
	}

	var out *bedrockruntime.ConverseStreamOutput
	err := p.base.Retry(ctx, IsRetryable, func() error {
		var err error
		out, err = p.client.ConverseStream(ctx, input)
		if err != nil {
			return p.wrapError(err, model)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, out, chunks, model)
	return chunks, nil
}

func (p *BedrockProvider) processStream(ctx context.Context, out *bedrockruntime.ConverseStreamOutput, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	stream := out.GetStream()
	defer stream.Close()

	var current *agent.ToolCallRequest
	var input strings.Builder
	var inputTokens, outputTokens int

	emitCurrent := func() bool {
		if current == nil {
			return true
		}
		current.Arguments = input.String()
		ok := send(ctx, chunks, &agent.CompletionChunk{ToolCall: current})
		current = nil
		input.Reset()
		return ok
	}

	events := stream.Events()
	for {
		select {
		case <-ctx.Done():
			send(ctx, chunks, &agent.CompletionChunk{Error: ctx.Err(), Done: true})
			return

		case event, ok := <-events:
			if !ok {
				if !emitCurrent() {
					return
				}
				if err := stream.Err(); err != nil {
					send(ctx, chunks, &agent.CompletionChunk{Error: p.wrapError(err, model), Done: true})
					return
				}
				send(ctx, chunks, &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					current = &agent.ToolCallRequest{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					input.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" && !send(ctx, chunks, &agent.CompletionChunk{Text: delta.Value}) {
						return
					}
				case *types.ContentBlockDeltaMemberToolUse:
					input.WriteString(aws.ToString(delta.Value.Input))
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if !emitCurrent() {
					return
				}

			case *types.ConverseStreamOutputMemberMetadata:
				// Metadata follows messageStop and carries the usage.
				if usage := ev.Value.Usage; usage != nil {
					inputTokens = int(aws.ToInt32(usage.InputTokens))
					outputTokens = int(aws.ToInt32(usage.OutputTokens))
				}
			}
		}
	}
}

func toBedrockMessages(messages []agent.CompletionMessage) []types.Message {
	var out []types.Message
	var results []types.ContentBlock

	flushResults := func() {
		if len(results) > 0 {
			out = append(out, types.Message{Role: types.ConversationRoleUser, Content: results})
			results = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == agent.RoleTool {
			results = append(results, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: msg.Content},
					},
				},
			})
			continue
		}
		flushResults()

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(tc.ArgumentsMap()),
				},
			})
		}
		if len(content) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == agent.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	flushResults()
	return out
}

func (p *BedrockProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}
	perr := NewProviderError("bedrock", model, err)

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		perr = perr.WithStatus(status.HTTPStatusCode())
	}
	var reqID interface{ ServiceRequestID() string }
	if errors.As(err, &reqID) {
		perr = perr.WithRequestID(reqID.ServiceRequestID())
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		perr = perr.WithCode(apiErr.ErrorCode())
		if msg := apiErr.ErrorMessage(); msg != "" {
			perr = perr.WithMessage(msg)
		}
	}
	return perr
}
