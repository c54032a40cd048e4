package agent

import "strings"

// BuildStopMessage renders the user-facing explanation for a stopped run.
func BuildStopMessage(reason string) string {
	return strings.Join([]string{
		"The agent stopped due to resource constraints.",
		"Reason: " + reason,
		"",
		"Partial context was preserved. You can:",
		"1. Continue with a simpler version of your request",
		"2. Break your task into smaller, independent parts",
		"3. Increase budget/time limits if available",
	}, "\n")
}

// BuildNextSteps suggests follow-ups based on why the run stopped. Budget
// reasons include the per-counter limit messages from RunContext.
func BuildNextSteps(reason string) []string {
	lower := strings.ToLower(reason)
	switch {
	case isBudgetReason(lower):
		return []string{
			"Increase max_tool_calls or max_tokens_per_request",
			"Split task into smaller chunks",
		}
	case strings.Contains(lower, "time"):
		return []string{
			"Increase max_time_seconds",
			"Make request simpler",
		}
	default:
		return []string{
			"Simplify the request",
			"Break into smaller tasks",
		}
	}
}

func isBudgetReason(lower string) bool {
	for _, marker := range []string{"budget", "tool call limit", "token limit", "cost limit"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
