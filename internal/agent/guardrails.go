package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Guardrail denial reasons.
const (
	DenyDangerousContent = "Tool arguments contain potentially dangerous content"
	DenyArgumentSize     = "Tool arguments exceed size limit"
)

// DefaultMaxArgumentChars bounds the serialized argument size a guardrail
// accepts.
const DefaultMaxArgumentChars = 10000

// RedactedValue replaces secret-looking substrings in tool arguments.
const RedactedValue = "[REDACTED]"

var defaultDangerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`(?:bash|sh)\s+-c`),
	regexp.MustCompile(`eval\s*\(`),
	regexp.MustCompile(`exec\s*\(`),
}

var defaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`(?i)[a-zA-Z0-9]{32,64}`),
	regexp.MustCompile(`(?i)password\s*[=:]\s*\S+`),
	regexp.MustCompile(`(?i)secret\s*[=:]\s*\S+`),
	regexp.MustCompile(`(?i)token\s*[=:]\s*\S+`),
}

// GuardrailVerdict is the outcome of checking one tool call.
type GuardrailVerdict struct {
	Allowed bool
	Reason  string
	// Arguments is a redacted copy for logging when Allowed. Tools run with
	// the original arguments.
	Arguments map[string]any
}

// Guardrails screens tool arguments before execution and scrubs secrets out
// of them.
type Guardrails struct {
	MaxArgumentChars int
	danger           []*regexp.Regexp
	secrets          []*regexp.Regexp
}

// NewGuardrails returns guardrails with the default pattern sets.
func NewGuardrails() *Guardrails {
	return &Guardrails{
		MaxArgumentChars: DefaultMaxArgumentChars,
		danger:           defaultDangerPatterns,
		secrets:          defaultSecretPatterns,
	}
}

// Check denies a call whose serialized, lowercased arguments match a danger
// pattern or exceed the size cap. Allowed verdicts carry a redacted copy of
// the arguments for logging.
func (g *Guardrails) Check(call ToolCall) GuardrailVerdict {
	data, err := json.Marshal(call.Arguments)
	if err != nil {
		return GuardrailVerdict{Reason: DenyDangerousContent}
	}
	serialized := strings.ToLower(string(data))

	for _, re := range g.danger {
		if re.MatchString(serialized) {
			return GuardrailVerdict{Reason: DenyDangerousContent}
		}
	}

	max := g.MaxArgumentChars
	if max <= 0 {
		max = DefaultMaxArgumentChars
	}
	if len([]rune(string(data))) > max {
		return GuardrailVerdict{Reason: DenyArgumentSize}
	}

	return GuardrailVerdict{Allowed: true, Arguments: g.Redact(call.Arguments)}
}

// Redact returns a copy of args with secret-looking substrings of every string
// value replaced, recursing into nested objects and lists.
func (g *Guardrails) Redact(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = g.redactValue(v)
	}
	return out
}

func (g *Guardrails) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		for _, re := range g.secrets {
			val = re.ReplaceAllString(val, RedactedValue)
		}
		return val
	case map[string]any:
		return g.Redact(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = g.redactValue(item)
		}
		return out
	default:
		return v
	}
}
