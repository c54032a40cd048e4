// Package normalize prepares user input before it reaches the agent loop.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Unknown is the language tag for input with no dominant script.
const Unknown = "unknown"

// Input is a normalized user message.
type Input struct {
	Content   string         `json:"content"`
	Original  string         `json:"original"`
	Language  string         `json:"language"`
	Metadata  map[string]any `json:"metadata"`
	RunID     string         `json:"run_id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// Normalize trims the message, applies NFC, folds whitespace runs to a
// single space and tags the dominant language.
func Normalize(message, runID, sessionID string, metadata map[string]any) Input {
	content := strings.Join(strings.Fields(norm.NFC.String(message)), " ")
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Input{
		Content:   content,
		Original:  message,
		Language:  DetectLanguage(content),
		Metadata:  metadata,
		RunID:     runID,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// scripts maps Unicode scripts to the language they most likely indicate.
// Han is checked after the Japanese kana so mixed text resolves to ja.
var scripts = []struct {
	table *unicode.RangeTable
	tag   language.Tag
}{
	{unicode.Cyrillic, language.Russian},
	{unicode.Hiragana, language.Japanese},
	{unicode.Katakana, language.Japanese},
	{unicode.Hangul, language.Korean},
	{unicode.Han, language.Chinese},
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Greek, language.Greek},
	{unicode.Devanagari, language.Hindi},
}

// DetectLanguage guesses a base language tag from the dominant script among
// the letters of s. ASCII-dominant Latin text is tagged "en".
func DetectLanguage(s string) string {
	counts := make(map[language.Tag]int)
	var letters, ascii, kana int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < unicode.MaxASCII {
			ascii++
			continue
		}
		for _, sc := range scripts {
			if unicode.Is(sc.table, r) {
				counts[sc.tag]++
				if sc.tag == language.Japanese {
					kana++
				}
				break
			}
		}
	}
	if letters == 0 {
		return Unknown
	}

	// Japanese mixes kana with Han; any kana decides it.
	if kana > 0 {
		counts[language.Japanese] += counts[language.Chinese]
		delete(counts, language.Chinese)
	}

	best, bestCount := language.Und, 0
	for _, sc := range scripts {
		if n := counts[sc.tag]; n > bestCount {
			best, bestCount = sc.tag, n
		}
	}
	if ascii*2 > letters {
		return language.English.String()
	}
	if bestCount*2 > letters {
		base, _ := best.Base()
		return base.String()
	}
	return Unknown
}
