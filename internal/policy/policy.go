// Package policy screens normalized input before a run starts and builds
// the refusal returned when a request is declined.
package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultAlternative is offered with every topic refusal.
const DefaultAlternative = "If you have a legitimate security research question, please provide more context about your authorized security testing environment."

// disallowedTopics are matched as lowercase substrings, first match wins.
var disallowedTopics = []string{
	"hacking",
	"exploit",
	"vulnerability",
	"weapon",
	"bomb",
	"malware",
	"ransomware",
	"phishing",
	"social engineering",
	"credit card",
	"ssn",
	"social security",
	"password",
	"api key",
	"secret key",
}

// Result is the outcome of a policy check.
type Result struct {
	Allowed     bool
	Reason      string
	Alternative string
}

// Engine applies the topic policy and the tool allow-list.
type Engine struct {
	allowedTools map[string]bool
}

// NewEngine creates an engine. An empty allow-list, or one containing "*",
// allows every tool.
func NewEngine(allowedTools []string) *Engine {
	e := &Engine{}
	for _, name := range allowedTools {
		name = strings.TrimSpace(name)
		if name == "*" {
			e.allowedTools = nil
			return e
		}
		if name == "" {
			continue
		}
		if e.allowedTools == nil {
			e.allowedTools = make(map[string]bool)
		}
		e.allowedTools[name] = true
	}
	return e
}

// Check screens content against the disallowed topics.
func (e *Engine) Check(content string) Result {
	lower := strings.ToLower(content)
	for _, topic := range disallowedTopics {
		if strings.Contains(lower, topic) {
			return Result{
				Reason:      fmt.Sprintf("Request appears to involve %s", topic),
				Alternative: DefaultAlternative,
			}
		}
	}
	return Result{Allowed: true}
}

// IsToolAllowed reports whether name is on the allow-list.
func (e *Engine) IsToolAllowed(name string) bool {
	if e == nil || len(e.allowedTools) == 0 {
		return true
	}
	return e.allowedTools[name]
}

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)["']?[\w-]+["']?`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(?i)(secret[_-]?key\s*[:=]\s*)["']?[\w-]+["']?`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(?i)(password\s*[:=]\s*)["']?[^"'\s]+["']?`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(?i)(token\s*[:=]\s*)["']?[\w-]+["']?`), "${1}***REDACTED***"},
	{regexp.MustCompile(`(?i)(bearer\s+)[\w-]+`), "${1}***REDACTED***"},
}

// RedactSecrets masks key=value style secrets, keeping the key.
func RedactSecrets(text string) string {
	for _, p := range secretPatterns {
		text = p.re.ReplaceAllString(text, p.repl)
	}
	return text
}
