package agent

import (
	"context"
	"time"
)

// ToolCall is a validated tool invocation: known tool, allowed, arguments
// decoded into an object.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResult is the recorded outcome of one ToolCall. Content is what the
// tool produced on success, or the error text on failure.
type ToolCallResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	Success    bool   `json:"success"`
	DurationMs int64  `json:"duration_ms"`
}

// RunStep is one trace entry. ToolCalls and ToolResults have the same length
// and order.
type RunStep struct {
	Reasoning   *string          `json:"reasoning"`
	ToolCalls   []ToolCall       `json:"tool_calls"`
	ToolResults []ToolCallResult `json:"tool_results"`
}

// Usage reports resource consumption for a finished run.
type Usage struct {
	TotalTokens int `json:"total_tokens"`
	ToolCalls   int `json:"tool_calls"`
}

// PendingConfirmation holds tool calls proposed in confirmation mode until the
// user replies with the confirmation token.
type PendingConfirmation struct {
	UserMessage      string             `json:"user_message"`
	AssistantMessage *CompletionMessage `json:"assistant_message,omitempty"`
	ToolCalls        []ToolCall         `json:"tool_calls"`
}

// Response is the outcome of a run, as returned to API callers.
type Response struct {
	RunID                string               `json:"run_id"`
	SessionID            string               `json:"session_id"`
	Message              string               `json:"message"`
	IsFinal              bool                 `json:"is_final"`
	ToolCalls            []ToolCall           `json:"tool_calls"`
	ToolResults          []ToolCallResult     `json:"tool_results"`
	Steps                []RunStep            `json:"steps"`
	RequiresConfirmation bool                 `json:"requires_confirmation"`
	PendingState         *PendingConfirmation `json:"pending_state,omitempty"`
	Usage                *Usage               `json:"usage,omitempty"`
	DurationMs           int64                `json:"duration_ms"`
	Timestamp            time.Time            `json:"timestamp"`
	NextSteps            []string             `json:"next_steps,omitempty"`
}

// OutputFunc receives incremental tool output. Stream is "stdout" or "stderr".
type OutputFunc func(stream, line string)

type toolContextKey int

const (
	sessionIDKey toolContextKey = iota
	outputFuncKey
)

// WithSessionID attaches the session a tool call runs on behalf of.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext returns the session id attached with WithSessionID.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// WithOutputFunc attaches a sink for incremental tool output.
func WithOutputFunc(ctx context.Context, fn OutputFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, outputFuncKey, fn)
}

// OutputFuncFromContext returns the attached output sink, or a no-op.
func OutputFuncFromContext(ctx context.Context) OutputFunc {
	if ctx != nil {
		if fn, ok := ctx.Value(outputFuncKey).(OutputFunc); ok && fn != nil {
			return fn
		}
	}
	return func(string, string) {}
}
