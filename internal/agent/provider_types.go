package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of communicating with one API
// (OpenRouter, OpenAI, Anthropic, Bedrock, Gemini) while presenting a unified
// streaming interface to the loop.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Runs for different
// sessions call Complete() simultaneously.
//
// See Also:
//   - providers.OpenRouterProvider, the default backend
//   - Collect for folding a stream into a single Completion
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
//
// Example:
//
//	req := &CompletionRequest{
//	    Model:     "openai/gpt-4o-mini",
//	    System:    "You are a helpful assistant.",
//	    Messages:  []CompletionMessage{{Role: "user", Content: "hello"}},
//	    MaxTokens: 1024,
//	}
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's default is used.
	Model string `json:"model"`

	// System is the system prompt. Providers that take system text inline
	// (OpenAI-compatible APIs) prepend it as a system message.
	System string `json:"system,omitempty"`

	// Messages contains the conversation in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines the tools the model may request. Empty disables tool calling.
	Tools []Tool `json:"-"`

	// MaxTokens limits the length of the generated response.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is the sampling temperature. Zero uses the provider default.
	Temperature float64 `json:"temperature,omitempty"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleDeveloper = "developer"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CompletionMessage represents a single message in a conversation.
//
// Role values: "system", "developer", "user", "assistant", "tool". Assistant messages may
// carry ToolCalls; tool messages carry the ToolCallID they answer.
type CompletionMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

// CompletionChunk represents a single chunk in a streaming LLM response.
//
// Each chunk carries one of: partial text, a complete tool call, the done
// signal (with token usage), or an error that terminates the stream.
type CompletionChunk struct {
	// Text contains partial response text
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool invocation request
	ToolCall *ToolCallRequest `json:"tool_call,omitempty"`

	// Done is true when the stream has completed
	Done bool `json:"done,omitempty"`

	// Error contains any error that occurred (streaming is terminated)
	Error error `json:"-"`

	// InputTokens and OutputTokens are only populated on the final chunk.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// ToolCallRequest is a tool invocation as the model produced it. Arguments is
// either a JSON-encoded string or an already-decoded object, depending on the
// provider; the Selector normalizes both.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// ArgumentsJSON returns the arguments as JSON text for replaying the request
// back to a provider.
func (r ToolCallRequest) ArgumentsJSON() string {
	switch v := r.Arguments.(type) {
	case nil:
		return "{}"
	case string:
		if strings.TrimSpace(v) == "" {
			return "{}"
		}
		return v
	case json.RawMessage:
		if len(v) == 0 {
			return "{}"
		}
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(data)
	}
}

// ArgumentsMap decodes the arguments into an object, returning an empty map
// when they are missing or not an object.
func (r ToolCallRequest) ArgumentsMap() map[string]any {
	if m, ok := r.Arguments.(map[string]any); ok {
		return m
	}
	out := map[string]any{}
	_ = json.Unmarshal([]byte(r.ArgumentsJSON()), &out)
	return out
}

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Echo struct{}
//
//	func (Echo) Name() string        { return "echo" }
//	func (Echo) Description() string { return "Echo back the input message" }
//	func (Echo) Schema() json.RawMessage {
//	    return json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`)
//	}
//	func (Echo) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
//	    var in struct{ Message string `json:"message"` }
//	    if err := json.Unmarshal(params, &in); err != nil {
//	        return nil, err
//	    }
//	    return &ToolResult{Content: in.Message}, nil
//	}
//
// A returned error or a panic is a failed invocation. Tools that report a
// soft failure (a search backend being down, a script exiting non-zero) do
// so inside Content and leave the invocation successful.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description returns a natural language description of what the tool does.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolResult contains the output from a tool execution.
type ToolResult struct {
	// Content is the tool's output (text or JSON)
	Content string `json:"content"`

	// IsError indicates this result represents an error condition
	IsError bool `json:"is_error,omitempty"`
}
