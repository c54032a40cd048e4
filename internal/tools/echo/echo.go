// Package echo provides a diagnostic tool that returns its input.
package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/tools/schema"
)

type params struct {
	Message string `json:"message" jsonschema:"description=Message to echo back"`
}

// Tool echoes a message with a timestamp.
type Tool struct {
	now func() time.Time
}

// New creates the echo tool.
func New() *Tool {
	return &Tool{now: time.Now}
}

func (t *Tool) Name() string { return "echo" }

func (t *Tool) Description() string {
	return "Echo back the input message. Useful for testing tool calling."
}

func (t *Tool) Schema() json.RawMessage { return schema.Reflect[params]() }

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*agent.ToolResult, error) {
	var in params
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return &agent.ToolResult{Content: agent.EncodeResult(map[string]string{
		"echo":      in.Message,
		"timestamp": t.now().UTC().Format(time.RFC3339),
	})}, nil
}
