// Package tools wires the built-in tools into a registry and formats tool
// calls for display.
package tools

import (
	"log/slog"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/shell"
	"github.com/haasonsaas/conductor/internal/tools/echo"
	"github.com/haasonsaas/conductor/internal/tools/exec"
	"github.com/haasonsaas/conductor/internal/tools/websearch"
)

// Deps carries what the built-in tools need.
type Deps struct {
	// Shells backs open_shell, run_shell_command and close_shell. Nil skips
	// the shell tools.
	Shells *shell.Manager

	Search       websearch.Config
	Python       exec.PythonConfig
	ShellTimeout time.Duration
	Logger       *slog.Logger
}

// RegisterBuiltins registers echo, search, run_python, the shell tools,
// stop_server and open_shell_window.
func RegisterBuiltins(reg *agent.ToolRegistry, deps Deps) {
	runner := exec.NewRunner(deps.Logger)

	reg.Register(echo.New())
	reg.Register(websearch.New(deps.Search))
	reg.Register(exec.NewPythonTool(deps.Python, runner))
	if deps.Shells != nil {
		reg.Register(exec.NewOpenShellTool(deps.Shells))
		reg.Register(exec.NewRunShellCommandTool(deps.Shells, deps.ShellTimeout))
		reg.Register(exec.NewCloseShellTool(deps.Shells))
	}
	reg.Register(exec.NewStopServerTool(runner))
	reg.Register(exec.NewOpenShellWindowTool(runner))
}
