package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxResponseTextSize caps the accumulated text of one completion (1MB).
const MaxResponseTextSize = 1 << 20

// MaxToolCallsPerCompletion caps how many tool calls one completion may request.
const MaxToolCallsPerCompletion = 100

// Completion is a fully collected model response.
type Completion struct {
	Content      string
	ToolCalls    []ToolCallRequest
	InputTokens  int
	OutputTokens int
}

// TotalTokens returns input plus output tokens.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Collect drains a provider stream into a Completion. Text deltas are passed
// to onText as they arrive when it is non-nil. Tool calls without an id get a
// generated one so every call can be answered by id.
func Collect(ctx context.Context, provider LLMProvider, req *CompletionRequest, onText func(string)) (*Completion, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	stream, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Completion{}
	var text strings.Builder
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case chunk, ok := <-stream:
			if !ok {
				out.Content = text.String()
				return out, nil
			}
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Text != "" {
				if text.Len()+len(chunk.Text) > MaxResponseTextSize {
					return nil, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
				}
				text.WriteString(chunk.Text)
				if onText != nil {
					onText(chunk.Text)
				}
			}
			if chunk.ToolCall != nil {
				if len(out.ToolCalls) >= MaxToolCallsPerCompletion {
					return nil, fmt.Errorf("tool calls exceed maximum of %d per completion", MaxToolCallsPerCompletion)
				}
				call := *chunk.ToolCall
				if call.ID == "" {
					call.ID = "call_" + uuid.NewString()
				}
				out.ToolCalls = append(out.ToolCalls, call)
			}
			if chunk.InputTokens > 0 {
				out.InputTokens = chunk.InputTokens
			}
			if chunk.OutputTokens > 0 {
				out.OutputTokens = chunk.OutputTokens
			}
		}
	}
}
