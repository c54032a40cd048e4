package agent

import (
	"strings"
	"unicode/utf8"
)

// DecisionKind tags a Decision variant.
type DecisionKind string

const (
	DecisionClarify   DecisionKind = "clarify"
	DecisionCallModel DecisionKind = "call_model"
	DecisionCallTool  DecisionKind = "call_tool"
	DecisionFinish    DecisionKind = "finish"
)

// Decision is the next action for the loop. Question is set for Clarify,
// ToolCalls for CallTool, FinalAnswer for Finish. StopReason is set only when a
// budget or time rule produced the Finish; the loop treats those as stops.
type Decision struct {
	Kind        DecisionKind
	Question    string
	ToolCalls   []ToolCallRequest
	FinalAnswer string
	StopReason  string
}

// ModelOutput is the part of the last model response the decision rules read.
type ModelOutput struct {
	Content   string
	ToolCalls []ToolCallRequest
}

// DecisionInput is the state Decide inspects.
type DecisionInput struct {
	Run          *RunContext
	Step         int
	LastResponse *ModelOutput
	ToolResults  int
}

// clarifyWindow bounds where the question mark must occur for a reply to be
// treated as a clarifying question.
const clarifyWindow = 100

// Decide picks the next action. It is deterministic and has no side effects;
// the first matching rule wins.
func Decide(in DecisionInput) Decision {
	if in.Run != nil {
		if !in.Run.HasBudgetRemaining() {
			return Decision{
				Kind:        DecisionFinish,
				FinalAnswer: "Budget exhausted. Stopping gracefully.",
				StopReason:  in.Run.BudgetExceededReason(),
			}
		}
		if in.Run.IsTimedOut() {
			return Decision{
				Kind:        DecisionFinish,
				FinalAnswer: "Time limit reached. Stopping gracefully.",
				StopReason:  "Time limit reached",
			}
		}
	}

	if in.Step == 0 {
		return Decision{Kind: DecisionCallModel}
	}

	if in.LastResponse != nil {
		if len(in.LastResponse.ToolCalls) > 0 {
			return Decision{Kind: DecisionCallTool, ToolCalls: in.LastResponse.ToolCalls}
		}
		text := strings.TrimSpace(in.LastResponse.Content)
		if text != "" {
			if isClarifyingQuestion(text) {
				return Decision{Kind: DecisionClarify, Question: text}
			}
			return Decision{Kind: DecisionFinish, FinalAnswer: text}
		}
	}

	if in.ToolResults > 0 {
		return Decision{Kind: DecisionCallModel}
	}

	return Decision{Kind: DecisionFinish, FinalAnswer: "Task completed."}
}

func isClarifyingQuestion(text string) bool {
	if !strings.HasSuffix(text, "?") {
		return false
	}
	head := text
	if utf8.RuneCountInString(head) > clarifyWindow {
		head = string([]rune(head)[:clarifyWindow])
	}
	return strings.Contains(head, "?")
}
