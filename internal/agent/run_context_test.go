package agent

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewRunContextDefaults(t *testing.T) {
	rc := NewRunContext("s1", Limits{MaxToolCalls: 3})
	if rc.RunID == "" || rc.SessionID != "s1" {
		t.Fatalf("expected ids to be set, got %q/%q", rc.RunID, rc.SessionID)
	}
	want := Limits{MaxTimeSeconds: DefaultMaxTimeSeconds, MaxToolCalls: 3, MaxTokens: DefaultMaxTokens, MaxCost: DefaultMaxCost}
	if rc.Limits != want {
		t.Fatalf("expected %+v, got %+v", want, rc.Limits)
	}
	if other := NewRunContext("s1", Limits{}); other.RunID == rc.RunID {
		t.Fatal("expected distinct run ids")
	}
}

func TestRunContextBudgets(t *testing.T) {
	rc := NewRunContext("s", Limits{MaxToolCalls: 2, MaxTokens: 100, MaxCost: 1})
	rc.RecordToolCall()
	rc.RecordTokens(-5)
	rc.RecordCost(0)
	if !rc.HasBudgetRemaining() {
		t.Fatal("expected budget remaining")
	}
	if rc.BudgetExceededReason() != "Budget exhausted" {
		t.Fatalf("expected generic reason, got %q", rc.BudgetExceededReason())
	}

	rc.RecordToolCall()
	if rc.HasBudgetRemaining() {
		t.Fatal("expected tool budget exhausted")
	}
	if got := rc.BudgetExceededReason(); got != "Tool call limit reached (2/2). Increase limits.max_tool_calls" {
		t.Fatalf("unexpected reason %q", got)
	}

	tokens := NewRunContext("s", Limits{MaxTokens: 100})
	tokens.RecordTokens(150)
	if got := tokens.BudgetExceededReason(); got != "Token limit reached (used 150, limit 100). Increase limits.max_tokens" {
		t.Fatalf("unexpected reason %q", got)
	}

	cost := NewRunContext("s", Limits{MaxCost: 0.5})
	cost.RecordCost(0.75)
	if got := cost.BudgetExceededReason(); got != "Cost limit reached ($0.75, limit $0.50). Increase limits.max_cost" {
		t.Fatalf("unexpected reason %q", got)
	}
}

func TestRunContextFreezesAfterTerminal(t *testing.T) {
	rc := NewRunContext("s", Limits{})
	rc.RecordTokens(10)
	rc.MarkCompleted()
	rc.RecordTokens(10)
	rc.RecordToolCall()
	rc.RecordCost(1)
	if rc.TokensUsed() != 10 || rc.ToolCalls() != 0 || rc.Cost() != 0 {
		t.Fatalf("expected frozen counters, got %d/%d/%v", rc.TokensUsed(), rc.ToolCalls(), rc.Cost())
	}

	stopped := NewRunContext("s", Limits{})
	stopped.MarkStopped("first")
	stopped.MarkStopped("second")
	status := stopped.Status()
	if status.Status != RunStateStopped || status.StopReason != "second" {
		t.Fatalf("expected stopped with last reason, got %+v", status)
	}
}

func TestRunContextTimeout(t *testing.T) {
	rc := NewRunContext("s", Limits{MaxTimeSeconds: 10})
	now := rc.StartedAt
	rc.now = func() time.Time { return now }
	if rc.IsTimedOut() {
		t.Fatal("expected no timeout at start")
	}
	now = rc.StartedAt.Add(10 * time.Second)
	if !rc.IsTimedOut() {
		t.Fatal("expected timeout at the limit")
	}
	if got := rc.Status().ElapsedSeconds; got != 10 {
		t.Fatalf("expected 10s elapsed, got %v", got)
	}
}

func TestRunContextConcurrentRecording(t *testing.T) {
	rc := NewRunContext("s", Limits{MaxToolCalls: 100000, MaxTokens: 100000})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				rc.RecordToolCall()
				rc.RecordTokens(1)
			}
		}()
	}
	wg.Wait()
	if rc.ToolCalls() != 1000 || rc.TokensUsed() != 1000 {
		t.Fatalf("expected 1000/1000, got %d/%d", rc.ToolCalls(), rc.TokensUsed())
	}
}

func TestBuildStopMessageAndNextSteps(t *testing.T) {
	msg := BuildStopMessage("Time limit reached")
	if !strings.HasPrefix(msg, "The agent stopped due to resource constraints.\nReason: Time limit reached\n") {
		t.Fatalf("unexpected stop message %q", msg)
	}
	if !strings.HasSuffix(msg, "3. Increase budget/time limits if available") {
		t.Fatalf("expected numbered suggestions, got %q", msg)
	}

	tests := []struct {
		reason string
		first  string
	}{
		{"Budget exhausted", "Increase max_tool_calls or max_tokens_per_request"},
		{"Tool call limit reached (15/15). Increase limits.max_tool_calls", "Increase max_tool_calls or max_tokens_per_request"},
		{"Token limit reached (used 1, limit 1)", "Increase max_tool_calls or max_tokens_per_request"},
		{"Time limit reached", "Increase max_time_seconds"},
		{"Error: boom", "Simplify the request"},
		{"Max iterations reached", "Simplify the request"},
	}
	for _, tt := range tests {
		steps := BuildNextSteps(tt.reason)
		if len(steps) != 2 || steps[0] != tt.first {
			t.Fatalf("expected %q first for %q, got %v", tt.first, tt.reason, steps)
		}
	}
}
