// Package exec provides the tools that start local processes: run_python,
// the persistent-shell adapters, stop_server and open_shell_window.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
)

const (
	defaultMaxOutput = 64000

	// maxPartialLine forces a flush of output that never sends a newline.
	maxPartialLine = 64 * 1024

	// waitDelay bounds how long Run waits for output pipes after a kill.
	waitDelay = 2 * time.Second
)

// Runner starts processes for the exec tools.
type Runner struct {
	maxOutput int
	logger    *slog.Logger
}

// NewRunner creates a runner that keeps at most 64000 bytes per stream.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{maxOutput: defaultMaxOutput, logger: logger.With("component", "exec")}
}

// RunResult summarizes a finished process.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Run executes name with args and waits for it. Each complete output line is
// passed to out as it arrives. A non-zero exit or a timeout is reported in the
// result; the error is only for processes that could not be started.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, out agent.OutputFunc, name string, args ...string) (RunResult, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if out == nil {
		out = func(string, string) {}
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.WaitDelay = waitDelay
	stdout := &lineWriter{stream: "stdout", buf: newLimitedBuffer(r.maxOutput), out: out}
	stderr := &lineWriter{stream: "stderr", buf: newLimitedBuffer(r.maxOutput), out: out}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	stdout.flush()
	stderr.flush()

	res := RunResult{
		Stdout:   stdout.buf.String(),
		Stderr:   stderr.buf.String(),
		ExitCode: exitCode(err),
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
		Duration: time.Since(start),
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !res.TimedOut && !errors.Is(err, exec.ErrWaitDelay) {
		return res, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}

// Launch starts name detached from the caller and returns its pid. The
// process is reaped in the background.
func (r *Runner) Launch(name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", name, err)
	}
	pid := cmd.Process.Pid
	go func() {
		if err := cmd.Wait(); err != nil {
			r.logger.Debug("launched process exited", "name", name, "pid", pid, "error", err)
		}
	}()
	r.logger.Info("launched process", "name", name, "pid", pid)
	return pid, nil
}

// lineWriter splits process output into lines for the output sink while
// keeping a bounded copy of everything written.
type lineWriter struct {
	mu      sync.Mutex
	stream  string
	buf     *limitedBuffer
	out     agent.OutputFunc
	partial []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.out(w.stream, strings.TrimRight(string(w.partial[:i]), "\r"))
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > maxPartialLine {
		w.out(w.stream, string(w.partial))
		w.partial = nil
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.out(w.stream, string(w.partial))
		w.partial = nil
	}
}

type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
