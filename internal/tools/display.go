package tools

import (
	"fmt"
	"strings"
)

// ToolDisplay is the one-line description of a tool call shown in the CLI.
type ToolDisplay struct {
	Name   string
	Emoji  string
	Label  string
	Detail string
}

type displaySpec struct {
	emoji      string
	label      string
	detailKeys []string
}

// maxDetailLength caps the detail portion of a summary.
const maxDetailLength = 80

var displaySpecs = map[string]displaySpec{
	"echo":              {"💬", "Echoing", []string{"message"}},
	"search":            {"🔎", "Searching", []string{"query"}},
	"run_python":        {"🐍", "Running Python", []string{"code"}},
	"open_shell":        {"💻", "Opening shell", nil},
	"run_shell_command": {"💻", "Running", []string{"command"}},
	"close_shell":       {"💻", "Closing shell", nil},
	"stop_server":       {"🛑", "Stopping server", []string{"port"}},
	"open_shell_window": {"🪟", "Opening terminal", nil},
}

var fallbackSpec = displaySpec{emoji: "🧩"}

// ResolveToolDisplay resolves display info for a tool call.
func ResolveToolDisplay(name string, args map[string]any) ToolDisplay {
	spec, ok := displaySpecs[normalizeToolName(name)]
	if !ok {
		spec = fallbackSpec
		spec.label = defaultTitle(name)
	}
	return ToolDisplay{
		Name:   name,
		Emoji:  spec.emoji,
		Label:  spec.label,
		Detail: resolveDetail(args, spec.detailKeys),
	}
}

// Summary formats the display as "emoji Label: detail".
func (d ToolDisplay) Summary() string {
	parts := make([]string, 0, 2)
	if d.Emoji != "" {
		parts = append(parts, d.Emoji)
	}
	if d.Label != "" {
		parts = append(parts, d.Label)
	}
	summary := strings.Join(parts, " ")
	if d.Detail != "" {
		summary += ": " + d.Detail
	}
	return summary
}

// normalizeToolName strips namespaces ("server.tool", "mcp__x__tool") and
// a _tool suffix.
func normalizeToolName(name string) string {
	normalized := strings.ToLower(name)
	if i := strings.LastIndex(normalized, "__"); i >= 0 {
		normalized = normalized[i+2:]
	}
	if i := strings.LastIndex(normalized, "."); i >= 0 {
		normalized = normalized[i+1:]
	}
	return strings.TrimSuffix(normalized, "_tool")
}

func defaultTitle(name string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(normalizeToolName(name)))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func resolveDetail(args map[string]any, keys []string) string {
	details := make([]string, 0, len(keys))
	for _, key := range keys {
		if value := coerceDisplayValue(args[key]); value != "" {
			details = append(details, value)
		}
	}
	return truncate(strings.Join(details, " · "), maxDetailLength)
}

func coerceDisplayValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		// Multi-line values such as code show their first line.
		first, _, _ := strings.Cut(strings.TrimSpace(v), "\n")
		return first
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := coerceDisplayValue(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
