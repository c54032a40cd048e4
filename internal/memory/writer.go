package memory

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`password`),
	regexp.MustCompile(`secret`),
	regexp.MustCompile(`token`),
	regexp.MustCompile(`api[_-]?key`),
	regexp.MustCompile(`private[_-]?key`),
	regexp.MustCompile(`ssn`),
	regexp.MustCompile(`social[_-]?security`),
	regexp.MustCompile(`credit[_-]?card`),
}

const (
	minWriteChars   = 20
	maxSummaryChars = 500
)

// Writer decides which tool results are worth keeping in long-term memory.
type Writer struct {
	store  *SQLStore
	logger *slog.Logger
}

// NewWriter creates a writer over store.
func NewWriter(store *SQLStore, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger.With("component", "memory_writer")}
}

// ShouldWrite rejects failed results, short results and anything that looks
// like it holds credentials or personal identifiers.
func ShouldWrite(content string, success bool) bool {
	if !success {
		return false
	}
	if utf8.RuneCountInString(content) < minWriteChars {
		return false
	}
	lower := strings.ToLower(content)
	for _, re := range sensitivePatterns {
		if re.MatchString(lower) {
			return false
		}
	}
	return true
}

// Classify assigns a category and importance from the content.
func Classify(content string) (string, float64) {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "preference"):
		return CategoryPreference, 0.8
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
		return CategoryOutcome, 0.3
	default:
		return CategoryFact, 0.5
	}
}

// Summarize truncates content for storage.
func Summarize(content string) string {
	if utf8.RuneCountInString(content) <= maxSummaryChars {
		return content
	}
	return string([]rune(content)[:maxSummaryChars]) + "..."
}

// ConsiderWrite stores a summary of a tool result when ShouldWrite allows it.
// It returns the new memory id, or "" when nothing was written.
func (w *Writer) ConsiderWrite(ctx context.Context, sessionID, toolName, content string, success bool) string {
	if w == nil || w.store == nil || !ShouldWrite(content, success) {
		return ""
	}
	category, importance := Classify(content)
	id, err := w.store.Store(ctx, Entry{
		SessionID:  sessionID,
		Content:    Summarize(content),
		Category:   category,
		Importance: importance,
		Metadata:   map[string]any{"tool": toolName},
	})
	if err != nil {
		w.logger.WarnContext(ctx, "failed to write memory", "tool", toolName, "error", err)
		return ""
	}
	return id
}
