package agent

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildObservation(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		res     ToolExecutionResult
		summary string
		payload string
	}{
		{
			name:    "results count",
			args:    map[string]any{"query": "go", "count": 2},
			res:     ToolExecutionResult{Success: true, Content: `{"results":[1,2,3]}`},
			summary: "Tool 'web_search' called with (count=2, query=go) succeeded. Found 3 result(s).",
			payload: `{"results":[1,2,3]}`,
		},
		{
			name:    "echo hint",
			args:    map[string]any{"message": "hi"},
			res:     ToolExecutionResult{Success: true, Content: `{"echo":"hi"}`},
			summary: "Tool 'web_search' called with (message=hi) succeeded. Echo: hi",
			payload: `{"echo":"hi"}`,
		},
		{
			name:    "plain text",
			args:    nil,
			res:     ToolExecutionResult{Success: true, Content: "hello"},
			summary: "Tool 'web_search' called with () succeeded.",
			payload: "hello",
		},
		{
			name:    "failure",
			args:    map[string]any{"query": "go"},
			res:     ToolExecutionResult{Error: "network down"},
			summary: "Tool 'web_search' failed: network down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := BuildObservation("web_search", tt.args, tt.res)
			if obs.Summary != tt.summary {
				t.Fatalf("expected summary %q, got %q", tt.summary, obs.Summary)
			}
			if obs.RawPayload != tt.payload {
				t.Fatalf("expected payload %q, got %q", tt.payload, obs.RawPayload)
			}
		})
	}
}

func TestObservationModelContent(t *testing.T) {
	failed := BuildObservation("x", nil, ToolExecutionResult{Error: "bad"})
	if failed.ModelContent() != failed.Summary {
		t.Fatalf("expected summary for failures, got %q", failed.ModelContent())
	}

	big := ToolObservation{RawPayload: strings.Repeat("é", MaxObservationChars+10)}
	content := big.ModelContent()
	if !strings.HasSuffix(content, truncationMarker) {
		t.Fatalf("expected truncation marker, got tail %q", content[len(content)-20:])
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(content, truncationMarker)); n != MaxObservationChars {
		t.Fatalf("expected %d runes kept, got %d", MaxObservationChars, n)
	}

	exact := ToolObservation{RawPayload: strings.Repeat("a", MaxObservationChars)}
	if exact.ModelContent() != exact.RawPayload {
		t.Fatal("expected payload at the limit to pass untouched")
	}
}
