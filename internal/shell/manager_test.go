package shell

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	m := NewManager(nil, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func TestManager_OpenIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	msg, err := m.Open(ctx, "s1")
	if err != nil || msg != MsgOpened {
		t.Fatalf("expected %q, got %q (%v)", MsgOpened, msg, err)
	}
	pid, err := m.PID("s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err = m.Open(ctx, "s1")
	if err != nil || msg != MsgAlreadyOpen {
		t.Fatalf("expected %q, got %q (%v)", MsgAlreadyOpen, msg, err)
	}
	again, _ := m.PID("s1")
	if again != pid {
		t.Fatalf("expected same pid %d, got %d", pid, again)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
}

func TestManager_StatePersistsAcrossCommands(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Open(ctx, "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	dir := t.TempDir()
	if res := m.RunCommand(ctx, "s1", "cd "+dir, 0); !res.Success {
		t.Fatalf("expected cd to succeed, got %+v", res)
	}
	res := m.RunCommand(ctx, "s1", "pwd", 5*time.Second)
	if !res.Success || !strings.HasSuffix(strings.TrimSpace(res.Output), dir) {
		t.Fatalf("expected pwd %q, got %+v", dir, res)
	}

	res = m.RunCommand(ctx, "s1", "  echo hello  ", 5*time.Second)
	if res.Output != "hello" {
		t.Fatalf("expected hello, got %q", res.Output)
	}
	if strings.Contains(res.Output, EndMarker) {
		t.Fatal("expected marker stripped from output")
	}

	res = m.RunCommand(ctx, "s1", "printf partial", 5*time.Second)
	if res.Output != "partial" || strings.Contains(res.Output, EndMarker) {
		t.Fatalf("expected output sharing the prompt line, got %q", res.Output)
	}
}

func TestManager_Timeout(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Open(ctx, "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	start := time.Now()
	res := m.RunCommand(ctx, "s1", "echo started; sleep 5", 300*time.Millisecond)
	if !res.Success || !res.TimedOut {
		t.Fatalf("expected timed out success, got %+v", res)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("expected RunCommand to return at the deadline")
	}
	if !strings.Contains(res.Output, "started") {
		t.Fatalf("expected partial output, got %q", res.Output)
	}
}

func TestManager_CloseAndMissing(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if res := m.RunCommand(ctx, "nobody", "ls", 0); res.Success || res.Output != MsgNotOpen {
		t.Fatalf("expected %q, got %+v", MsgNotOpen, res)
	}
	if _, err := m.PID("nobody"); !errors.Is(err, ErrShellNotOpen) {
		t.Fatalf("expected ErrShellNotOpen, got %v", err)
	}

	if _, err := m.Open(ctx, "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if msg := m.Close("s1"); msg != MsgClosed {
		t.Fatalf("expected %q, got %q", MsgClosed, msg)
	}
	if msg := m.Close("s1"); msg != MsgNoneOpen {
		t.Fatalf("expected %q, got %q", MsgNoneOpen, msg)
	}
	if res := m.RunCommand(ctx, "s1", "ls", 0); res.Output != MsgNotOpen {
		t.Fatalf("expected %q after close, got %+v", MsgNotOpen, res)
	}
}

func TestManager_ExitedShellIsReplaced(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Open(ctx, "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	first, _ := m.PID("s1")

	res := m.RunCommand(ctx, "s1", "exit", 5*time.Second)
	if res.Success {
		t.Fatalf("expected exit to end the stream, got %+v", res)
	}
	if m.Len() != 0 {
		t.Fatal("expected dead shell removed")
	}

	if msg, err := m.Open(ctx, "s1"); err != nil || msg != MsgOpened {
		t.Fatalf("expected a fresh shell, got %q (%v)", msg, err)
	}
	second, _ := m.PID("s1")
	if second == first {
		t.Fatal("expected a new process")
	}
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		if _, err := m.Open(ctx, key); err != nil {
			t.Fatalf("open %s: %v", key, err)
		}
	}
	m.RunCommand(ctx, "a", "FOO=alpha", 5*time.Second)
	if res := m.RunCommand(ctx, "b", "echo \"[$FOO]\"", 5*time.Second); res.Output != "[]" {
		t.Fatalf("expected isolated env, got %q", res.Output)
	}
	if res := m.RunCommand(ctx, "a", "echo \"[$FOO]\"", 5*time.Second); res.Output != "[alpha]" {
		t.Fatalf("expected persisted env, got %q", res.Output)
	}

	m.CloseAll()
	if m.Len() != 0 {
		t.Fatalf("expected no sessions after CloseAll, got %d", m.Len())
	}
}

func TestManager_SlowOpenDoesNotBlockOtherSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Open(ctx, "b"); err != nil {
		t.Fatalf("open: %v", err)
	}

	// A shell that never prints a prompt keeps its Open waiting.
	script := filepath.Join(t.TempDir(), "silent.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	m.shell = script

	openCtx, cancel := context.WithCancel(ctx)
	opened := make(chan error, 1)
	go func() {
		_, err := m.Open(openCtx, "a")
		opened <- err
	}()
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	res := m.RunCommand(ctx, "b", "echo hi", 5*time.Second)
	elapsed := time.Since(start)
	cancel()
	<-opened

	if !res.Success || strings.TrimSpace(res.Output) != "hi" {
		t.Fatalf("expected hi, got %+v", res)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected command to run while another shell starts, took %v", elapsed)
	}
}

func TestManager_LongLineKeepsSessionOpen(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Open(ctx, "s1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	const n = 2000000
	res := m.RunCommand(ctx, "s1", "head -c 2000000 /dev/zero | tr '\\0' a; echo", 20*time.Second)
	if !res.Success || res.TimedOut {
		t.Fatalf("expected success, got success=%v timed_out=%v", res.Success, res.TimedOut)
	}
	if got := strings.Count(res.Output, "a"); got != n {
		t.Fatalf("expected %d bytes of output, got %d", n, got)
	}

	res = m.RunCommand(ctx, "s1", "echo ok", 5*time.Second)
	if !res.Success || strings.TrimSpace(res.Output) != "ok" {
		t.Fatalf("expected ok, got %+v", res)
	}
}
