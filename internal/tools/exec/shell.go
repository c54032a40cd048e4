package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/shell"
	"github.com/haasonsaas/conductor/internal/tools/schema"
)

// defaultShellKey is used when a call carries no session id.
const defaultShellKey = "default"

func shellKey(ctx context.Context) string {
	if id := agent.SessionIDFromContext(ctx); id != "" {
		return id
	}
	return defaultShellKey
}

type noParams struct{}

// OpenShellTool starts the session's persistent shell.
type OpenShellTool struct {
	shells *shell.Manager
}

// NewOpenShellTool creates open_shell.
func NewOpenShellTool(shells *shell.Manager) *OpenShellTool {
	return &OpenShellTool{shells: shells}
}

func (t *OpenShellTool) Name() string { return "open_shell" }

func (t *OpenShellTool) Description() string {
	return "Open a persistent shell for this session. State such as the working directory carries across run_shell_command calls."
}

func (t *OpenShellTool) Schema() json.RawMessage { return schema.Reflect[noParams]() }

func (t *OpenShellTool) Execute(ctx context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	msg, err := t.shells.Open(ctx, shellKey(ctx))
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: msg}, nil
}

type runShellParams struct {
	Command        string `json:"command" jsonschema:"description=Command to run in the open shell"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Stop waiting for output after this many seconds,default=10,minimum=1,maximum=600"`
}

// ShellOutput is the payload of run_shell_command.
type ShellOutput struct {
	Output   string `json:"output"`
	Success  bool   `json:"success"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// RunShellCommandTool runs a command in the session's shell.
type RunShellCommandTool struct {
	shells  *shell.Manager
	timeout time.Duration
}

// NewRunShellCommandTool creates run_shell_command. A zero timeout uses the
// shell default.
func NewRunShellCommandTool(shells *shell.Manager, timeout time.Duration) *RunShellCommandTool {
	if timeout <= 0 {
		timeout = shell.DefaultCommandTimeout
	}
	return &RunShellCommandTool{shells: shells, timeout: timeout}
}

func (t *RunShellCommandTool) Name() string { return "run_shell_command" }

func (t *RunShellCommandTool) Description() string {
	return "Run a command in the shell opened with open_shell and return its output. Long-running commands return partial output at the timeout."
}

func (t *RunShellCommandTool) Schema() json.RawMessage { return schema.Reflect[runShellParams]() }

func (t *RunShellCommandTool) Execute(ctx context.Context, raw json.RawMessage) (*agent.ToolResult, error) {
	var in runShellParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(in.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}
	timeout := t.timeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}

	res := t.shells.RunCommand(ctx, shellKey(ctx), in.Command, timeout)
	return &agent.ToolResult{Content: agent.EncodeResult(ShellOutput{
		Output:   res.Output,
		Success:  res.Success,
		TimedOut: res.TimedOut,
	})}, nil
}

// CloseShellTool terminates the session's shell.
type CloseShellTool struct {
	shells *shell.Manager
}

// NewCloseShellTool creates close_shell.
func NewCloseShellTool(shells *shell.Manager) *CloseShellTool {
	return &CloseShellTool{shells: shells}
}

func (t *CloseShellTool) Name() string { return "close_shell" }

func (t *CloseShellTool) Description() string {
	return "Close the persistent shell for this session."
}

func (t *CloseShellTool) Schema() json.RawMessage { return schema.Reflect[noParams]() }

func (t *CloseShellTool) Execute(ctx context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: t.shells.Close(shellKey(ctx))}, nil
}
