package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Retriever ranks long-term memories against a query.
type Retriever struct {
	store *SQLStore
	topK  int
}

// NewRetriever creates a retriever returning at most topK entries per search.
func NewRetriever(store *SQLStore, topK int) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{store: store, topK: topK}
}

// SearchOptions narrows a search. A zero TopK uses the retriever default.
type SearchOptions struct {
	Category      string
	TopK          int
	MinImportance float64
}

// Search fetches twice the requested number of candidates, scores them and
// returns the best TopK.
func (r *Retriever) Search(ctx context.Context, sessionID, query string, opts SearchOptions) ([]Entry, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.topK
	}
	candidates, err := r.store.Retrieve(ctx, Query{
		SessionID: sessionID,
		Text:      query,
		Category:  opts.Category,
		Limit:     topK * 2,
	})
	if err != nil {
		return nil, err
	}

	type scored struct {
		score float64
		entry Entry
	}
	ranked := make([]scored, 0, len(candidates))
	for _, entry := range candidates {
		if entry.Importance < opts.MinImportance {
			continue
		}
		ranked = append(ranked, scored{score: Relevance(entry, query), entry: entry})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]Entry, len(ranked))
	for i, s := range ranked {
		out[i] = s.entry
	}
	return out, nil
}

// Context runs a search and formats the result for the prompt. Errors
// yield an empty string so retrieval never blocks a run.
func (r *Retriever) Context(ctx context.Context, sessionID, query string) string {
	entries, err := r.Search(ctx, sessionID, query, SearchOptions{})
	if err != nil {
		return ""
	}
	return Format(entries)
}

// Relevance scores an entry: 1.0 for a substring match, otherwise the share
// of query words present, blended 70/30 with the entry's importance.
func Relevance(entry Entry, query string) float64 {
	q := strings.ToLower(query)
	content := strings.ToLower(entry.Content)

	var base float64
	if strings.Contains(content, q) {
		base = 1.0
	} else {
		queryWords := wordSet(q)
		contentWords := wordSet(content)
		overlap := 0
		for w := range queryWords {
			if _, ok := contentWords[w]; ok {
				overlap++
			}
		}
		denom := len(queryWords)
		if denom == 0 {
			denom = 1
		}
		base = float64(overlap) / float64(denom)
	}
	return base*0.7 + entry.Importance*0.3
}

func wordSet(s string) map[string]struct{} {
	words := wordPattern.FindAllString(s, -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Format renders entries as a numbered context block.
func Format(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := []string{"Relevant context from memory:"}
	for i, e := range entries {
		parts = append(parts, fmt.Sprintf("%d. [%s] %s", i+1, e.Category, e.Content))
	}
	return strings.Join(parts, "\n")
}
