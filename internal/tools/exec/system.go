package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/tools/schema"
)

const (
	defaultServerPort = 5000
	stopServerTimeout = 10 * time.Second
)

type stopServerParams struct {
	Port int `json:"port,omitempty" jsonschema:"description=TCP port the server listens on,default=5000,minimum=1,maximum=65535"`
}

// StopServerTool kills whatever listens on a local port.
type StopServerTool struct {
	runner *Runner
}

// NewStopServerTool creates stop_server.
func NewStopServerTool(runner *Runner) *StopServerTool {
	if runner == nil {
		runner = NewRunner(nil)
	}
	return &StopServerTool{runner: runner}
}

func (t *StopServerTool) Name() string { return "stop_server" }

func (t *StopServerTool) Description() string {
	return "Stop a local server by killing every process listening on the given port."
}

func (t *StopServerTool) Schema() json.RawMessage { return schema.Reflect[stopServerParams]() }

func (t *StopServerTool) Execute(ctx context.Context, raw json.RawMessage) (*agent.ToolResult, error) {
	var in stopServerParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	port := in.Port
	if port == 0 {
		port = defaultServerPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}

	command := fmt.Sprintf("lsof -ti :%d | xargs -r kill -9", port)
	res, err := t.runner.Run(ctx, stopServerTimeout, nil, "sh", "-c", command)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: agent.EncodeResult(map[string]any{
		"port":       port,
		"command":    command,
		"returncode": res.ExitCode,
		"output":     strings.TrimSpace(res.Stdout + res.Stderr),
	})}, nil
}

// terminals are tried in order by open_shell_window.
var terminals = []string{"xterm", "gnome-terminal"}

// OpenShellWindowTool opens a visible terminal for the user.
type OpenShellWindowTool struct {
	runner   *Runner
	lookPath func(string) (string, error)
}

// NewOpenShellWindowTool creates open_shell_window.
func NewOpenShellWindowTool(runner *Runner) *OpenShellWindowTool {
	if runner == nil {
		runner = NewRunner(nil)
	}
	return &OpenShellWindowTool{runner: runner, lookPath: exec.LookPath}
}

func (t *OpenShellWindowTool) Name() string { return "open_shell_window" }

func (t *OpenShellWindowTool) Description() string {
	return "Open a visible terminal window on the host (xterm, else gnome-terminal)."
}

func (t *OpenShellWindowTool) Schema() json.RawMessage { return schema.Reflect[noParams]() }

func (t *OpenShellWindowTool) Execute(ctx context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
	for _, name := range terminals {
		path, err := t.lookPath(name)
		if err != nil {
			continue
		}
		if _, err := t.runner.Launch(path); err != nil {
			return nil, err
		}
		return &agent.ToolResult{Content: fmt.Sprintf("Opened a terminal window (%s).", name)}, nil
	}
	return &agent.ToolResult{Content: "No terminal emulator found. Install xterm or gnome-terminal."}, nil
}
