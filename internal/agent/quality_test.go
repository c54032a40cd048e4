package agent

import (
	"strings"
	"testing"
)

func TestQualityChecker(t *testing.T) {
	q := NewQualityChecker()
	tests := []struct {
		name     string
		content  string
		passed   bool
		needsFix bool
		reason   string
	}{
		{"empty", "", false, true, "Empty response"},
		{"bare refusal", "Sorry, I cannot help with that.", false, true, "Content may contain disallowed information"},
		{"refusal with substance", "I can't help with the first part, but here is a detailed explanation of the second part of your question.", true, false, ""},
		{"hedging", "I think it works. I believe so. We assume it is fine. It is probably right.", false, true, "Response contains potential hallucination markers"},
		{"three markers pass", "I think so. I believe so. Probably.", true, false, ""},
		{"open fence", "Here:\n```go\nfmt.Println()\n", false, false, "Markdown formatting issues detected"},
		{"balanced fence", "```\ncode\n```", true, false, ""},
		{"plain", "The answer is 42.", true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := q.Check(tt.content)
			if got.Passed != tt.passed || got.NeedsFix != tt.needsFix || got.Reason != tt.reason {
				t.Fatalf("expected %v/%v/%q, got %v/%v/%q", tt.passed, tt.needsFix, tt.reason, got.Passed, got.NeedsFix, got.Reason)
			}
		})
	}
}

func TestQualityRefusalWindow(t *testing.T) {
	q := NewQualityChecker()
	tail := strings.Repeat("x", refusalTailChars)
	if got := q.Check("i cannot help with" + tail); got.NeedsFix {
		t.Fatalf("expected enough trailing text to pass, got %q", got.Reason)
	}
}
