package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDecide(t *testing.T) {
	exhausted := NewRunContext("s", Limits{MaxToolCalls: 1})
	exhausted.RecordToolCall()

	timedOut := NewRunContext("s", Limits{MaxTimeSeconds: 10})
	timedOut.now = func() time.Time { return timedOut.StartedAt.Add(11 * time.Second) }

	longQuestion := strings.Repeat("a", 150) + "?"

	tests := []struct {
		name   string
		in     DecisionInput
		kind   DecisionKind
		answer string
	}{
		{"first step calls model", DecisionInput{Run: NewRunContext("s", Limits{})}, DecisionCallModel, ""},
		{"budget beats step zero", DecisionInput{Run: exhausted}, DecisionFinish, "Budget exhausted. Stopping gracefully."},
		{"time beats step zero", DecisionInput{Run: timedOut}, DecisionFinish, "Time limit reached. Stopping gracefully."},
		{"tool calls", DecisionInput{Step: 1, LastResponse: &ModelOutput{ToolCalls: []ToolCallRequest{{Name: "echo"}}}}, DecisionCallTool, ""},
		{"tool calls beat text", DecisionInput{Step: 1, LastResponse: &ModelOutput{Content: "why?", ToolCalls: []ToolCallRequest{{Name: "echo"}}}}, DecisionCallTool, ""},
		{"short question clarifies", DecisionInput{Step: 1, LastResponse: &ModelOutput{Content: "Which file?"}}, DecisionClarify, ""},
		{"long question finishes", DecisionInput{Step: 1, LastResponse: &ModelOutput{Content: longQuestion}}, DecisionFinish, longQuestion},
		{"text finishes trimmed", DecisionInput{Step: 1, LastResponse: &ModelOutput{Content: "  42  "}}, DecisionFinish, "42"},
		{"tool results call model", DecisionInput{Step: 2, ToolResults: 1}, DecisionCallModel, ""},
		{"blank text with results calls model", DecisionInput{Step: 2, LastResponse: &ModelOutput{Content: "  "}, ToolResults: 1}, DecisionCallModel, ""},
		{"nothing left", DecisionInput{Step: 3}, DecisionFinish, "Task completed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.in)
			if d.Kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, d.Kind)
			}
			if tt.answer != "" && d.FinalAnswer != tt.answer {
				t.Fatalf("expected answer %q, got %q", tt.answer, d.FinalAnswer)
			}
		})
	}
}

func TestDecideStopReasons(t *testing.T) {
	run := NewRunContext("s", Limits{MaxTokens: 1000})
	run.RecordTokens(1000)
	d := Decide(DecisionInput{Run: run, Step: 4})
	if !strings.HasPrefix(d.StopReason, "Token limit reached") {
		t.Fatalf("expected token stop reason, got %q", d.StopReason)
	}

	d = Decide(DecisionInput{Step: 1, LastResponse: &ModelOutput{Content: "ok"}})
	if d.StopReason != "" {
		t.Fatalf("expected no stop reason on a normal finish, got %q", d.StopReason)
	}
}

func TestDecideProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decide is deterministic", prop.ForAll(
		func(step int, content string, results int) bool {
			in := DecisionInput{Step: step, LastResponse: &ModelOutput{Content: content}, ToolResults: results}
			a, b := Decide(in), Decide(in)
			return a.Kind == b.Kind && a.Question == b.Question && a.FinalAnswer == b.FinalAnswer
		},
		gen.IntRange(0, 60),
		gen.AnyString(),
		gen.IntRange(0, 5),
	))

	properties.Property("step zero with budget always calls the model", prop.ForAll(
		func(content string, results int) bool {
			in := DecisionInput{
				Run:          NewRunContext("s", Limits{}),
				LastResponse: &ModelOutput{Content: content},
				ToolResults:  results,
			}
			return Decide(in).Kind == DecisionCallModel
		},
		gen.AnyString(),
		gen.IntRange(0, 5),
	))

	properties.Property("any tool call after step zero is executed", prop.ForAll(
		func(step int, name, content string) bool {
			in := DecisionInput{
				Step:         step,
				LastResponse: &ModelOutput{Content: content, ToolCalls: []ToolCallRequest{{Name: name}}},
			}
			d := Decide(in)
			return d.Kind == DecisionCallTool && len(d.ToolCalls) == 1 && d.ToolCalls[0].Name == name
		},
		gen.IntRange(1, 60),
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("exhausted budget always finishes with a stop reason", prop.ForAll(
		func(step int, content string) bool {
			run := NewRunContext("s", Limits{MaxToolCalls: 1})
			run.RecordToolCall()
			d := Decide(DecisionInput{Run: run, Step: step, LastResponse: &ModelOutput{Content: content}})
			return d.Kind == DecisionFinish && d.StopReason != ""
		},
		gen.IntRange(0, 60),
		gen.AnyString(),
	))

	properties.Property("clarify only for short trailing questions", prop.ForAll(
		func(step int, content string) bool {
			d := Decide(DecisionInput{Step: step, LastResponse: &ModelOutput{Content: content}})
			if d.Kind != DecisionClarify {
				return true
			}
			return strings.HasSuffix(d.Question, "?") && strings.TrimSpace(d.Question) == d.Question
		},
		gen.IntRange(1, 60),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
