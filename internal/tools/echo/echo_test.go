package echo

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEcho(t *testing.T) {
	tool := New()
	tool.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("expected JSON content, got %q", res.Content)
	}
	if out["echo"] != "hi" || out["timestamp"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected payload %v", out)
	}

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"message":`)); err == nil {
		t.Fatal("expected error for malformed params")
	}
}
