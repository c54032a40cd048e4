package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxObservationChars caps the text handed back to the model per tool result.
const MaxObservationChars = 12000

const truncationMarker = "\n... [truncated]"

// ToolObservation is the model-facing view of a tool result.
type ToolObservation struct {
	Summary    string
	RawPayload string
	Citation   string
}

// BuildObservation summarizes a tool result.
//
// On success the summary names the tool and its arguments (keys sorted),
// optionally extended with a result count or echo hint taken from a JSON
// payload. On failure the summary carries the error and there is no payload.
func BuildObservation(name string, args map[string]any, res ToolExecutionResult) ToolObservation {
	if !res.Success {
		return ToolObservation{Summary: fmt.Sprintf("Tool '%s' failed: %v", name, res.Error)}
	}

	summary := fmt.Sprintf("Tool '%s' called with (%s) succeeded.", name, formatArguments(args))

	var payload map[string]any
	if err := json.Unmarshal([]byte(res.Content), &payload); err == nil && payload != nil {
		if results, ok := payload["results"]; ok {
			summary += fmt.Sprintf(" Found %d result(s).", lengthOf(results))
		} else if echo, ok := payload["echo"]; ok {
			summary += fmt.Sprintf(" Echo: %v", echo)
		}
	}

	return ToolObservation{Summary: summary, RawPayload: res.Content}
}

// ModelContent returns the text the model sees for this observation: the raw
// payload if present, otherwise the summary, truncated to MaxObservationChars.
func (o ToolObservation) ModelContent() string {
	content := o.RawPayload
	if content == "" {
		content = o.Summary
	}
	return truncateText(content, MaxObservationChars)
}

func formatArguments(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}

func lengthOf(v any) int {
	switch val := v.(type) {
	case []any:
		return len(val)
	case map[string]any:
		return len(val)
	case string:
		return utf8.RuneCountInString(val)
	case nil:
		return 0
	default:
		return 1
	}
}

func truncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + truncationMarker
}
