package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/tools/schema"
)

const (
	defaultInterpreter   = "python3"
	defaultPythonTimeout = 15 * time.Second
)

// PythonConfig configures run_python.
type PythonConfig struct {
	// Interpreter runs the script file. Default: python3
	Interpreter string

	// Timeout applies when the call does not set timeout_seconds. Default: 15s
	Timeout time.Duration

	// SeparateShell launches scripts in their own terminal and returns
	// without waiting for them.
	SeparateShell bool

	// TempDir holds script files. Empty uses the system temp dir.
	TempDir string
}

type pythonParams struct {
	Code           string `json:"code" jsonschema:"description=Python source to execute"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"description=Kill the script after this many seconds,default=15,minimum=1,maximum=600"`
}

// PythonOutput is the payload of a finished script.
type PythonOutput struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
	Success    bool   `json:"success"`
}

// PythonTool runs Python snippets from a temporary file.
type PythonTool struct {
	config   PythonConfig
	runner   *Runner
	lookPath func(string) (string, error)
}

// NewPythonTool creates run_python.
func NewPythonTool(config PythonConfig, runner *Runner) *PythonTool {
	if config.Interpreter == "" {
		config.Interpreter = defaultInterpreter
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultPythonTimeout
	}
	if runner == nil {
		runner = NewRunner(nil)
	}
	return &PythonTool{config: config, runner: runner, lookPath: exec.LookPath}
}

func (t *PythonTool) Name() string { return "run_python" }

func (t *PythonTool) Description() string {
	return "Execute Python code and return stdout, stderr and the exit code. Output streams while the script runs."
}

func (t *PythonTool) Schema() json.RawMessage { return schema.Reflect[pythonParams]() }

func (t *PythonTool) Execute(ctx context.Context, raw json.RawMessage) (*agent.ToolResult, error) {
	var in pythonParams
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(in.Code) == "" {
		return &agent.ToolResult{Content: "No code provided."}, nil
	}
	timeout := t.config.Timeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}

	script, err := t.writeScript(in.Code)
	if err != nil {
		return nil, err
	}
	if t.config.SeparateShell {
		return t.launch(script)
	}
	defer os.Remove(script)

	res, err := t.runner.Run(ctx, timeout, agent.OutputFuncFromContext(ctx), t.config.Interpreter, script)
	if err != nil {
		return nil, err
	}

	out := PythonOutput{
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ReturnCode: res.ExitCode,
		Success:    res.ExitCode == 0 && !res.TimedOut,
	}
	if res.TimedOut {
		note := fmt.Sprintf("Execution timed out after %ds.", int(timeout.Seconds()))
		if out.Stderr != "" && !strings.HasSuffix(out.Stderr, "\n") {
			out.Stderr += "\n"
		}
		out.Stderr += note
	}
	return &agent.ToolResult{Content: agent.EncodeResult(out)}, nil
}

func (t *PythonTool) writeScript(code string) (string, error) {
	f, err := os.CreateTemp(t.config.TempDir, "conductor-*.py")
	if err != nil {
		return "", fmt.Errorf("create script: %w", err)
	}
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write script: %w", err)
	}
	return f.Name(), nil
}

// launch starts the script in xterm when available, else in the background.
// The script file is left for the detached process to read.
func (t *PythonTool) launch(script string) (*agent.ToolResult, error) {
	terminal := "none"
	var pid int
	var err error
	if xterm, lookErr := t.lookPath("xterm"); lookErr == nil {
		terminal = "xterm"
		pid, err = t.runner.Launch(xterm, "-hold", "-e", t.config.Interpreter, script)
	} else {
		pid, err = t.runner.Launch(t.config.Interpreter, script)
	}
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: agent.EncodeResult(map[string]any{
		"status":   "launched",
		"terminal": terminal,
		"pid":      pid,
		"script":   script,
	})}, nil
}
