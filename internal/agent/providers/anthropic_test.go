package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/conductor/internal/agent"
)

func TestAnthropicStreamsToolUse(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("expected /messages path, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header")
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude","usage":{"input_tokens":12,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"echo","input":{}}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"message\":"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"hi\"}"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":1}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":9}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		flusher, _ := w.(http.Flusher)
		for _, ev := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch, err := provider.Complete(context.Background(), &agent.CompletionRequest{
		Messages: []agent.CompletionMessage{
			{Role: agent.RoleSystem, Content: "You are terse."},
			{Role: agent.RoleDeveloper, Content: "Tools: echo"},
			{Role: agent.RoleUser, Content: "say hi"},
		},
		Tools: []agent.Tool{echoTool{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, calls, last := drain(t, ch)

	if text != "Let me check." {
		t.Fatalf("expected text, got %q", text)
	}
	if len(calls) != 1 || calls[0].ID != "toolu_1" || calls[0].ArgumentsMap()["message"] != "hi" {
		t.Fatalf("expected echo call with message=hi, got %+v", calls)
	}
	if last == nil || !last.Done || last.InputTokens != 12 || last.OutputTokens != 9 {
		t.Fatalf("expected done chunk with usage, got %+v", last)
	}

	system, _ := captured["system"].([]any)
	if len(system) != 1 {
		t.Fatalf("expected one system block, got %v", captured["system"])
	}
	block, _ := system[0].(map[string]any)
	if block["text"] != "You are terse.\n\nTools: echo" {
		t.Fatalf("expected folded system prompt, got %v", block["text"])
	}
	if msgs, _ := captured["messages"].([]any); len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %v", captured["messages"])
	}
}

func TestToAnthropicMessagesMergesToolResults(t *testing.T) {
	msgs := toAnthropicMessages([]agent.CompletionMessage{
		{Role: agent.RoleUser, Content: "go"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCallRequest{
			{ID: "a", Name: "echo", Arguments: `{"message":"1"}`},
			{ID: "b", Name: "echo", Arguments: `{"message":"2"}`},
		}},
		{Role: agent.RoleTool, ToolCallID: "a", Content: "1"},
		{Role: agent.RoleTool, ToolCallID: "b", Content: "2"},
		{Role: agent.RoleUser, Content: "next"},
	})
	if len(msgs) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(msgs))
	}
	if len(msgs[2].Content) != 2 {
		t.Fatalf("expected 2 tool_result blocks in one turn, got %d", len(msgs[2].Content))
	}
	if msgs[2].Content[0].OfToolResult == nil || msgs[2].Content[0].OfToolResult.ToolUseID != "a" {
		t.Fatalf("expected tool_result for a, got %+v", msgs[2].Content[0])
	}
}

func TestNewAnthropicProviderRequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
