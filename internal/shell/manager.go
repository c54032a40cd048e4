// Package shell keeps one persistent interactive shell per session so tool
// calls can build up state (working directory, env, background jobs) across
// commands.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/conductor/internal/observability"
)

// EndMarker is the prompt the shell prints after every command. Output is
// collected up to the line that carries it.
const EndMarker = "AGENTSHELL_END"

const (
	// DefaultCommandTimeout bounds RunCommand when no timeout is given.
	DefaultCommandTimeout = 10 * time.Second

	// closeGrace is how long Close waits after SIGTERM before killing.
	closeGrace = 3 * time.Second

	// startupWait bounds how long Open drains output before the first prompt.
	startupWait = 5 * time.Second

	lineBuffer    = 256
	maxLineLength = 1 << 20
)

// Messages returned to the model.
const (
	MsgOpened      = "Shell opened."
	MsgAlreadyOpen = "Shell already open for this session."
	MsgNotOpen     = "No shell open. Call open_shell first."
	MsgExited      = "Shell process has exited. Call open_shell again."
	MsgClosed      = "Shell closed."
	MsgNoneOpen    = "No shell was open."
)

// ErrShellNotOpen is returned by lookups on a session without a shell.
var ErrShellNotOpen = errors.New("no shell open")

// Session is one live shell process.
type Session struct {
	Key       string
	PID       int
	StartedAt time.Time

	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string
	done  chan struct{}

	// run serializes commands on the same shell.
	run      sync.Mutex
	released sync.Once
}

func (s *Session) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Result is the outcome of one command.
type Result struct {
	Output   string
	Success  bool
	TimedOut bool
}

// Manager owns the shell sessions. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// opening holds a gate per key while its shell starts outside mu.
	opening map[string]chan struct{}

	shell   string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a manager that spawns "sh -i". Metrics may be nil.
func NewManager(logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		opening:  make(map[string]chan struct{}),
		shell:    "sh",
		logger:   logger.With("component", "shell"),
		metrics:  metrics,
	}
}

// Open starts a shell for key. A live shell is left alone; a dead one is
// replaced. Concurrent opens of the same key wait for the first one; other
// keys are not blocked while a shell starts.
func (m *Manager) Open(ctx context.Context, key string) (string, error) {
	gate, err := m.reserve(ctx, key)
	if err != nil {
		return "", err
	}
	if gate == nil {
		return MsgAlreadyOpen, nil
	}
	defer func() {
		m.mu.Lock()
		delete(m.opening, key)
		m.mu.Unlock()
		close(gate)
	}()

	s, err := m.spawn(ctx, key)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.sessions[key] = s
	m.mu.Unlock()
	m.metrics.ShellOpened()
	m.logger.Info("shell opened", "session_id", key, "pid", s.PID)
	return MsgOpened, nil
}

// reserve claims the open gate for key. It returns nil when a live shell is
// already registered.
func (m *Manager) reserve(ctx context.Context, key string) (chan struct{}, error) {
	for {
		m.mu.Lock()
		if s, ok := m.sessions[key]; ok {
			if s.alive() {
				m.mu.Unlock()
				return nil, nil
			}
			m.releaseLocked(key, s)
		}
		wait, busy := m.opening[key]
		if !busy {
			gate := make(chan struct{})
			m.opening[key] = gate
			m.mu.Unlock()
			return gate, nil
		}
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Manager) spawn(ctx context.Context, key string) (*Session, error) {
	cmd := exec.Command(m.shell, "-i")
	cmd.Env = append(os.Environ(), "PS1="+EndMarker+"\n", "PS2=", "ENV=")
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("shell stdin: %w", err)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("shell output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	pw.Close()

	s := &Session{
		Key:       key,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now(),
		cmd:       cmd,
		stdin:     stdin,
		lines:     make(chan string, lineBuffer),
		done:      make(chan struct{}),
	}
	go readLines(pr, s.lines)
	go func() {
		_ = cmd.Wait()
		close(s.done)
	}()

	m.awaitPrompt(ctx, s)
	return s, nil
}

// readLines forwards output line by line. Lines longer than maxLineLength
// are split so one huge line does not end the stream.
func readLines(r io.ReadCloser, out chan<- string) {
	defer close(out)
	defer r.Close()
	reader := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	for {
		chunk, more, err := reader.ReadLine()
		if err != nil {
			if len(line) > 0 {
				out <- string(line)
			}
			return
		}
		line = append(line, chunk...)
		if more && len(line) < maxLineLength {
			continue
		}
		out <- string(line)
		line = line[:0]
	}
}

// awaitPrompt discards startup noise up to the first prompt.
func (m *Manager) awaitPrompt(ctx context.Context, s *Session) {
	timer := time.NewTimer(startupWait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.logger.Warn("shell prompt not seen during startup", "session_id", s.Key)
			return
		case line, ok := <-s.lines:
			if !ok || strings.HasSuffix(line, EndMarker) {
				return
			}
		}
	}
}

func (m *Manager) get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrShellNotOpen
	}
	return s, nil
}

// PID returns the process id of the shell for key.
func (m *Manager) PID(key string) (int, error) {
	s, err := m.get(key)
	if err != nil {
		return 0, err
	}
	return s.PID, nil
}

// Len returns the number of tracked shells.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunCommand sends command to the shell for key and collects its output until
// the prompt returns, the timeout passes or the shell goes away. A timeout is
// not a failure; the partial output is returned as is.
func (m *Manager) RunCommand(ctx context.Context, key, command string, timeout time.Duration) Result {
	s, err := m.get(key)
	if err != nil {
		return Result{Output: MsgNotOpen}
	}
	if !s.alive() {
		m.remove(key, s)
		return Result{Output: MsgExited}
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	s.run.Lock()
	defer s.run.Unlock()

	drainStale(s.lines)
	if _, err := io.WriteString(s.stdin, strings.TrimSpace(command)+"\n"); err != nil {
		m.remove(key, s)
		return Result{Output: MsgExited}
	}

	var out []string
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Result{Output: strings.Join(out, "\n"), Success: true, TimedOut: true}
		case <-timer.C:
			return Result{Output: strings.Join(out, "\n"), Success: true, TimedOut: true}
		case line, ok := <-s.lines:
			if !ok {
				m.remove(key, s)
				return Result{Output: strings.Join(out, "\n")}
			}
			if strings.HasSuffix(line, EndMarker) {
				// Output without a trailing newline shares the prompt's line.
				if rest := strings.TrimSuffix(line, EndMarker); rest != "" {
					out = append(out, rest)
				}
				return Result{Output: strings.Join(out, "\n"), Success: true}
			}
			out = append(out, line)
		}
	}
}

func drainStale(lines <-chan string) {
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close terminates the shell for key.
func (m *Manager) Close(key string) string {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		m.releaseLocked(key, s)
	}
	m.mu.Unlock()

	if !ok {
		return MsgNoneOpen
	}
	m.terminate(s)
	m.logger.Info("shell closed", "session_id", key, "pid", s.PID)
	return MsgClosed
}

// CloseAll terminates every shell. It runs on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.Close(key)
	}
}

func (m *Manager) terminate(s *Session) {
	_ = s.stdin.Close()
	if !s.alive() {
		return
	}
	signalTerminate(s.cmd)
	select {
	case <-s.done:
	case <-time.After(closeGrace):
		killProcess(s.cmd)
		<-s.done
	}
}

// remove drops s if it is still the shell registered for key.
func (m *Manager) remove(key string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[key] == s {
		m.releaseLocked(key, s)
	}
}

func (m *Manager) releaseLocked(key string, s *Session) {
	delete(m.sessions, key)
	s.released.Do(m.metrics.ShellClosed)
}
