package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestToolRegistry(t *testing.T) {
	reg := newTestRegistry(funcTool{name: "b"}, echoTool{})
	if !reg.Has("echo") || reg.Has("missing") {
		t.Fatal("unexpected Has results")
	}
	specs := reg.Specs()
	if len(specs) != 2 || specs[0].Name != "b" || specs[1].Name != "echo" {
		t.Fatalf("expected sorted specs, got %+v", specs)
	}
	if string(specs[1].Parameters) == "" {
		t.Fatal("expected parameters schema")
	}

	reg.Unregister("b")
	if reg.Has("b") {
		t.Fatal("expected b removed")
	}

	_, err := reg.Execute(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	_, err = reg.Execute(context.Background(), strings.Repeat("x", MaxToolNameLength+1), nil)
	if err == nil {
		t.Fatal("expected long name to be rejected")
	}
}

func TestToolRegistryValidateArguments(t *testing.T) {
	reg := newTestRegistry(echoTool{}, funcTool{name: "open"})
	if err := reg.ValidateArguments("echo", map[string]any{"message": "x"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := reg.ValidateArguments("echo", map[string]any{"message": 3}); err == nil {
		t.Fatal("expected type error")
	}
	if err := reg.ValidateArguments("open", map[string]any{"anything": true}); err != nil {
		t.Fatalf("expected open schema to accept, got %v", err)
	}
}

func TestExecutor(t *testing.T) {
	reg := newTestRegistry(
		echoTool{},
		funcTool{name: "fail", fn: func(context.Context, json.RawMessage) (*ToolResult, error) { return nil, errBoom }},
		funcTool{name: "soft", fn: func(context.Context, json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "bad input", IsError: true}, nil
		}},
		funcTool{name: "nil", fn: func(context.Context, json.RawMessage) (*ToolResult, error) { return nil, nil }},
		funcTool{name: "panic", fn: func(context.Context, json.RawMessage) (*ToolResult, error) { panic("kaboom") }},
		funcTool{name: "stream", fn: func(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
			out := OutputFuncFromContext(ctx)
			out("stdout", "line 1")
			out("stderr", "warn")
			return &ToolResult{Content: "ok"}, nil
		}},
	)
	ex := NewExecutor(reg, nil, nil)
	ctx := context.Background()

	res := ex.Execute(ctx, ToolCall{ID: "1", Name: "echo", Arguments: map[string]any{"message": "hi"}}, nil)
	if !res.Success || res.Content != `{"echo":"hi"}` {
		t.Fatalf("expected echo success, got %+v", res)
	}

	res = ex.Execute(ctx, ToolCall{ID: "2", Name: "fail"}, nil)
	if res.Success || res.Error != "boom" {
		t.Fatalf("expected boom failure, got %+v", res)
	}

	res = ex.Execute(ctx, ToolCall{ID: "3", Name: "soft"}, nil)
	if res.Success || res.Error != "bad input" {
		t.Fatalf("expected IsError to fail the call, got %+v", res)
	}

	res = ex.Execute(ctx, ToolCall{ID: "4", Name: "nil"}, nil)
	if !res.Success || res.Content != "" {
		t.Fatalf("expected empty success, got %+v", res)
	}

	res = ex.Execute(ctx, ToolCall{ID: "5", Name: "panic"}, nil)
	if res.Success || !strings.Contains(res.Error, "kaboom") {
		t.Fatalf("expected recovered panic, got %+v", res)
	}

	var lines []string
	res = ex.Execute(ctx, ToolCall{ID: "6", Name: "stream"}, func(stream, line string) {
		lines = append(lines, stream+":"+line)
	})
	if !res.Success || len(lines) != 2 || lines[0] != "stdout:line 1" || lines[1] != "stderr:warn" {
		t.Fatalf("expected streamed lines, got %v (%+v)", lines, res)
	}

	res = NewExecutor(nil, nil, nil).Execute(ctx, ToolCall{Name: "echo"}, nil)
	if res.Success {
		t.Fatal("expected failure without a registry")
	}
}

func TestEncodeResult(t *testing.T) {
	if EncodeResult(nil) != "" || EncodeResult("x") != "x" || EncodeResult([]byte("y")) != "y" {
		t.Fatal("unexpected scalar encodings")
	}
	if got := EncodeResult(map[string]int{"a": 1}); got != "{\n  \"a\": 1\n}" {
		t.Fatalf("expected indented JSON, got %q", got)
	}
}

func TestOutputFuncFromContextDefaults(t *testing.T) {
	OutputFuncFromContext(context.Background())("stdout", "ignored")
	if WithOutputFunc(context.Background(), nil) != context.Background() {
		t.Fatal("expected nil sink to leave the context unchanged")
	}
	ctx := WithSessionID(context.Background(), "s1")
	if SessionIDFromContext(ctx) != "s1" {
		t.Fatal("expected session id round trip")
	}
}

func TestExecutorPanicFailure(t *testing.T) {
	reg := newTestRegistry(funcTool{name: "panic", fn: func(context.Context, json.RawMessage) (*ToolResult, error) { panic("kaboom") }})
	ex := NewExecutor(reg, nil, nil)

	_, err := ex.invoke(context.Background(), ToolCall{ID: "p1", Name: "panic"})
	var failure *ToolFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected ToolFailure, got %v", err)
	}
	if !errors.Is(err, ErrToolPanic) || failure.CallID != "p1" || len(failure.Stack) == 0 {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if strings.Contains(err.Error(), "goroutine") {
		t.Fatalf("expected stack kept out of the message, got %q", err.Error())
	}

	_, err = NewExecutor(nil, nil, nil).invoke(context.Background(), ToolCall{ID: "m1", Name: "missing"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}
