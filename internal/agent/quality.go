package agent

import (
	"regexp"
	"strings"
)

// QualityResult is the verdict on a final answer. NeedsFix asks the loop to
// send the answer back to the model; a result can fail without needing a fix.
type QualityResult struct {
	Passed   bool
	NeedsFix bool
	Reason   string
}

var refusalPhrases = []string{
	"i cannot help with",
	"i can't help with",
}

// refusalTailChars is how much text must follow a refusal phrase for the
// answer to count as substantive.
const refusalTailChars = 50

var uncertaintyMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:I|we) think\b`),
	regexp.MustCompile(`(?i)\b(?:I|we) believe\b`),
	regexp.MustCompile(`(?i)\b(?:I|we) assume\b`),
	regexp.MustCompile(`(?i)\b(?:probably|likely|maybe)\b`),
}

// maxUncertaintyMarkers is the number of distinct markers tolerated.
const maxUncertaintyMarkers = 3

// QualityChecker inspects final answers before they are returned.
type QualityChecker struct{}

// NewQualityChecker returns a checker with the built-in rules.
func NewQualityChecker() *QualityChecker {
	return &QualityChecker{}
}

// Check applies the rules in order: empty answer, bare refusal, heavy hedging,
// then unbalanced code fences.
func (q *QualityChecker) Check(content string) QualityResult {
	if content == "" {
		return QualityResult{NeedsFix: true, Reason: "Empty response"}
	}

	if isBareRefusal(content) {
		return QualityResult{NeedsFix: true, Reason: "Content may contain disallowed information"}
	}

	markers := 0
	for _, re := range uncertaintyMarkers {
		if re.MatchString(content) {
			markers++
		}
	}
	if markers > maxUncertaintyMarkers {
		return QualityResult{NeedsFix: true, Reason: "Response contains potential hallucination markers"}
	}

	if strings.Count(content, "```")%2 != 0 {
		return QualityResult{Reason: "Markdown formatting issues detected"}
	}

	return QualityResult{Passed: true}
}

func isBareRefusal(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range refusalPhrases {
		if idx := strings.Index(lower, phrase); idx >= 0 && len(lower)-idx < refusalTailChars {
			return true
		}
	}
	return false
}
