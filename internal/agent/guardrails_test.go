package agent

import (
	"strings"
	"testing"
)

func TestGuardrailsCheck(t *testing.T) {
	g := NewGuardrails()
	tests := []struct {
		name   string
		args   map[string]any
		allow  bool
		reason string
	}{
		{"plain", map[string]any{"query": "golang"}, true, ""},
		{"rm -rf", map[string]any{"command": "rm -rf /"}, false, DenyDangerousContent},
		{"uppercase rm", map[string]any{"command": "RM   -RF /tmp"}, false, DenyDangerousContent},
		{"sh -c", map[string]any{"command": "sh -c 'ls'"}, false, DenyDangerousContent},
		{"eval", map[string]any{"code": "eval (x)"}, false, DenyDangerousContent},
		{"nested exec", map[string]any{"opts": map[string]any{"code": "exec(x)"}}, false, DenyDangerousContent},
		{"too large", map[string]any{"code": strings.Repeat("a ", 6000)}, false, DenyArgumentSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Check(ToolCall{Name: "t", Arguments: tt.args})
			if v.Allowed != tt.allow {
				t.Fatalf("expected allowed=%v, got %v (%s)", tt.allow, v.Allowed, v.Reason)
			}
			if v.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, v.Reason)
			}
		})
	}
}

func TestGuardrailsRedact(t *testing.T) {
	g := NewGuardrails()
	key := "sk-" + strings.Repeat("a", 40)
	args := map[string]any{
		"header": "password=hunter22",
		"nested": map[string]any{"key": key},
		"list":   []any{"token: abc123", 7},
		"count":  3,
	}
	out := g.Redact(args)

	if out["header"] != RedactedValue {
		t.Fatalf("expected password redacted, got %v", out["header"])
	}
	if nested := out["nested"].(map[string]any); nested["key"] != RedactedValue {
		t.Fatalf("expected key redacted, got %v", nested["key"])
	}
	list := out["list"].([]any)
	if list[0] != RedactedValue || list[1] != 7 {
		t.Fatalf("expected list redacted in place, got %v", list)
	}
	if out["count"] != 3 {
		t.Fatalf("expected non-strings untouched, got %v", out["count"])
	}
	if args["header"] != "password=hunter22" {
		t.Fatal("expected input map left unchanged")
	}
}

func TestGuardrailsVerdictRedactsCopyOnly(t *testing.T) {
	args := map[string]any{"query": "secret: s3cr3t-value"}
	v := NewGuardrails().Check(ToolCall{Name: "web_search", Arguments: args})
	if !v.Allowed {
		t.Fatalf("expected allowed, got %s", v.Reason)
	}
	if v.Arguments["query"] != RedactedValue {
		t.Fatalf("expected redacted log copy, got %v", v.Arguments["query"])
	}
	if args["query"] != "secret: s3cr3t-value" {
		t.Fatalf("expected call arguments untouched, got %v", args["query"])
	}
}
