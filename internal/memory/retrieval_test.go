package memory

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestRelevance(t *testing.T) {
	tests := []struct {
		name   string
		entry  Entry
		query  string
		expect float64
	}{
		{"substring", Entry{Content: "The Go gopher", Importance: 0.5}, "go gopher", 0.7 + 0.15},
		{"word overlap", Entry{Content: "fast compiled language", Importance: 0}, "fast interpreted language", 0.7 * 2.0 / 3.0},
		{"no overlap", Entry{Content: "apples", Importance: 1}, "oranges", 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Relevance(tt.entry, tt.query)
			if math.Abs(got-tt.expect) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if Format(nil) != "" {
		t.Fatal("expected empty format for no entries")
	}
	got := Format([]Entry{{Category: "fact", Content: "a"}, {Category: "preference", Content: "b"}})
	want := "Relevant context from memory:\n1. [fact] a\n2. [preference] b"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRetriever_Search(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, e := range []Entry{
		{SessionID: "s1", Content: "golang channels explained", Importance: 0.3},
		{SessionID: "s1", Content: "golang generics overview", Importance: 0.9},
		{SessionID: "s1", Content: "golang modules", Importance: 0.1},
		{SessionID: "s1", Content: "python typing", Importance: 1.0},
	} {
		if _, err := store.Store(ctx, e); err != nil {
			t.Fatalf("store failed: %v", err)
		}
	}

	r := NewRetriever(store, 2)
	entries, err := r.Search(ctx, "s1", "golang", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Content != "golang generics overview" {
		t.Fatalf("expected generics first, got %q", entries[0].Content)
	}

	filtered, err := r.Search(ctx, "s1", "golang", SearchOptions{TopK: 5, MinImportance: 0.5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 entry above importance 0.5, got %d", len(filtered))
	}

	block := r.Context(ctx, "s1", "golang")
	if !strings.HasPrefix(block, "Relevant context from memory:") {
		t.Fatalf("expected formatted context, got %q", block)
	}
}
