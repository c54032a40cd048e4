package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func decode(t *testing.T, content string) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		t.Fatalf("expected JSON payload, got %q: %v", content, err)
	}
	return resp
}

func ddgServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("format") != "json" {
			t.Errorf("expected format=json, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Heading":      "Go",
			"AbstractText": "Go is a programming language.",
			"AbstractURL":  "https://go.dev",
			"RelatedTopics": []map[string]any{
				{"FirstURL": "https://go.dev/doc", "Text": "Documentation - the Go docs"},
				{"Topics": []map[string]any{
					{"FirstURL": "https://go.dev/blog", "Text": "Blog - news"},
				}},
				{"FirstURL": "", "Text": "skipped"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchDuckDuckGo(t *testing.T) {
	var hits atomic.Int32
	srv := ddgServer(t, &hits)
	tool := New(Config{DuckDuckGoURL: srv.URL + "/"})

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if err != nil || res.IsError {
		t.Fatalf("expected success, got %+v (%v)", res, err)
	}
	resp := decode(t, res.Content)
	if resp.Query != "golang" || resp.Total != 3 || len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %+v", resp)
	}
	if resp.Results[0].URL != "https://go.dev" || resp.Results[1].Title != "Documentation" || resp.Results[2].URL != "https://go.dev/blog" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}

	res, _ = tool.Execute(context.Background(), json.RawMessage(`{"query":"golang","max_results":1}`))
	if resp := decode(t, res.Content); resp.Total != 1 {
		t.Fatalf("expected max_results to cap, got %d", resp.Total)
	}
}

func TestSearchCache(t *testing.T) {
	var hits atomic.Int32
	srv := ddgServer(t, &hits)
	tool := New(Config{DuckDuckGoURL: srv.URL + "/", CacheTTL: time.Minute})
	now := time.Now()
	tool.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tool.Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one backend hit, got %d", hits.Load())
	}

	now = now.Add(2 * time.Minute)
	tool.Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if hits.Load() != 2 {
		t.Fatalf("expected expired entry to refetch, got %d hits", hits.Load())
	}
}

func TestSearchSearXNGWithFallback(t *testing.T) {
	searx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("expected /search, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{
			{"title": "One", "url": "https://one", "content": "first"},
			{"title": "Two", "url": "https://two", "content": "second"},
		}})
	}))
	defer searx.Close()

	tool := New(Config{SearXNGURL: searx.URL})
	if tool.config.Backend != BackendSearXNG {
		t.Fatalf("expected searxng backend, got %s", tool.config.Backend)
	}
	res, _ := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	if resp := decode(t, res.Content); resp.Total != 2 || resp.Results[1].Snippet != "second" {
		t.Fatalf("unexpected searxng results %+v", resp)
	}

	var hits atomic.Int32
	ddg := ddgServer(t, &hits)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	fallback := New(Config{SearXNGURL: broken.URL, DuckDuckGoURL: ddg.URL + "/"})
	res, _ = fallback.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
	if resp := decode(t, res.Content); resp.Total != 3 || hits.Load() != 1 {
		t.Fatalf("expected DuckDuckGo fallback, got %+v", resp)
	}
}

func TestSearchFailureIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := New(Config{DuckDuckGoURL: srv.URL + "/"})
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if err != nil || res.IsError {
		t.Fatalf("expected soft failure, got %+v (%v)", res, err)
	}
	resp := decode(t, res.Content)
	if resp.Total != 0 || len(resp.Results) != 0 || resp.Error == "" || resp.Hint == "" {
		t.Fatalf("expected error and hint, got %+v", resp)
	}
	if len(tool.cache) != 0 {
		t.Fatal("expected failures not to be cached")
	}
}

func TestSearchInvalidParams(t *testing.T) {
	tool := New(Config{})
	for _, params := range []string{`{invalid}`, `{}`, `{"query":"   "}`} {
		res, err := tool.Execute(context.Background(), json.RawMessage(params))
		if err != nil || !res.IsError {
			t.Fatalf("expected error result for %s, got %+v (%v)", params, res, err)
		}
	}
}
