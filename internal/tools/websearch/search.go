// Package websearch provides the search tool backed by DuckDuckGo's instant
// answer API or a SearXNG instance.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/tools/schema"
)

// Backend names a search provider.
type Backend string

const (
	BackendDuckDuckGo Backend = "duckduckgo"
	BackendSearXNG    Backend = "searxng"
)

const (
	// DefaultDuckDuckGoURL is the instant answer endpoint.
	DefaultDuckDuckGoURL = "https://api.duckduckgo.com/"

	defaultResultCount = 5
	maxResultCount     = 20
	defaultCacheTTL    = 5 * time.Minute

	// maxCacheSize limits the number of cached search responses to prevent unbounded memory growth
	maxCacheSize = 1000

	failureHint = "Search is unavailable right now. Answer from existing knowledge or ask the user for a source."
)

// Config configures the search tool.
type Config struct {
	Backend       Backend
	SearXNGURL    string
	DuckDuckGoURL string

	// ResultCount is used when the call does not set max_results.
	ResultCount int
	CacheTTL    time.Duration
	HTTPClient  *http.Client
}

type params struct {
	Query      string `json:"query" jsonschema:"description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Number of results to return,default=5,minimum=1,maximum=20"`
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Response is the tool's payload. Error and Hint are set only when every
// backend failed.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Error   string   `json:"error,omitempty"`
	Hint    string   `json:"hint,omitempty"`
}

type cacheEntry struct {
	response  Response
	expiresAt time.Time
}

// Tool implements agent.Tool for web search.
type Tool struct {
	config Config
	client *http.Client

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
	now     func() time.Time
}

// New creates the search tool, filling in defaults.
func New(config Config) *Tool {
	if config.ResultCount <= 0 {
		config.ResultCount = defaultResultCount
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaultCacheTTL
	}
	if config.DuckDuckGoURL == "" {
		config.DuckDuckGoURL = DefaultDuckDuckGoURL
	}
	if config.Backend == "" {
		config.Backend = BackendDuckDuckGo
		if config.SearXNGURL != "" {
			config.Backend = BackendSearXNG
		}
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Tool{
		config: config,
		client: client,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
}

func (t *Tool) Name() string { return "search" }

func (t *Tool) Description() string {
	return "Search the web and return titles, URLs and snippets for the top results."
}

func (t *Tool) Schema() json.RawMessage { return schema.Reflect[params]() }

// Execute runs the search. Backend failures are reported inside the payload
// so the model can carry on without results.
func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*agent.ToolResult, error) {
	var in params
	if err := json.Unmarshal(raw, &in); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return toolError("query is required"), nil
	}
	count := in.MaxResults
	if count <= 0 {
		count = t.config.ResultCount
	}
	if count > maxResultCount {
		count = maxResultCount
	}

	key := fmt.Sprintf("%s:%d:%s", t.config.Backend, count, in.Query)
	if cached, ok := t.getFromCache(key); ok {
		return formatResponse(cached), nil
	}

	resp, err := t.search(ctx, in.Query, count)
	if err != nil {
		return formatResponse(Response{
			Query:   in.Query,
			Results: []Result{},
			Error:   err.Error(),
			Hint:    failureHint,
		}), nil
	}
	t.putInCache(key, resp)
	return formatResponse(resp), nil
}

// search queries the configured backend, falling back to DuckDuckGo when
// SearXNG fails.
func (t *Tool) search(ctx context.Context, query string, count int) (Response, error) {
	var results []Result
	var err error
	switch t.config.Backend {
	case BackendSearXNG:
		results, err = t.searchSearXNG(ctx, query, count)
		if err != nil {
			results, err = t.searchDuckDuckGo(ctx, query, count)
		}
	case BackendDuckDuckGo:
		results, err = t.searchDuckDuckGo(ctx, query, count)
	default:
		err = fmt.Errorf("unknown search backend %q", t.config.Backend)
	}
	if err != nil {
		return Response{}, err
	}
	return Response{Query: query, Results: results, Total: len(results)}, nil
}

func formatResponse(resp Response) *agent.ToolResult {
	if resp.Results == nil {
		resp.Results = []Result{}
	}
	return &agent.ToolResult{Content: agent.EncodeResult(resp)}
}

func (t *Tool) getFromCache(key string) (Response, bool) {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || t.now().After(entry.expiresAt) {
		return Response{}, false
	}
	return entry.response, true
}

func (t *Tool) putInCache(key string, resp Response) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := t.now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	// At capacity after cleanup, evict the entry closest to expiry.
	for len(t.cache) >= maxCacheSize {
		var oldestKey string
		var oldest time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldest) {
				oldestKey, oldest = k, v.expiresAt
			}
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = cacheEntry{response: resp, expiresAt: now.Add(t.config.CacheTTL)}
}

func (t *Tool) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ConductorBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search backend returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (t *Tool) searchSearXNG(ctx context.Context, query string, count int) ([]Result, error) {
	if t.config.SearXNGURL == "" {
		return nil, fmt.Errorf("SearXNG URL not configured")
	}
	u, err := url.Parse(t.config.SearXNGURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SearXNG URL: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "general")
	u.Path = strings.TrimRight(u.Path, "/") + "/search"
	u.RawQuery = q.Encode()

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := t.getJSON(ctx, u.String(), &payload); err != nil {
		return nil, err
	}

	results := make([]Result, 0, count)
	for _, r := range payload.Results {
		if len(results) == count {
			break
		}
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

type ddgTopic struct {
	FirstURL string     `json:"FirstURL"`
	Text     string     `json:"Text"`
	Topics   []ddgTopic `json:"Topics"`
}

func (t *Tool) searchDuckDuckGo(ctx context.Context, query string, count int) ([]Result, error) {
	u, err := url.Parse(t.config.DuckDuckGoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DuckDuckGo URL: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	var payload struct {
		Heading       string     `json:"Heading"`
		AbstractText  string     `json:"AbstractText"`
		AbstractURL   string     `json:"AbstractURL"`
		RelatedTopics []ddgTopic `json:"RelatedTopics"`
	}
	if err := t.getJSON(ctx, u.String(), &payload); err != nil {
		return nil, err
	}

	results := make([]Result, 0, count)
	if payload.AbstractText != "" && payload.AbstractURL != "" {
		results = append(results, Result{Title: payload.Heading, URL: payload.AbstractURL, Snippet: payload.AbstractText})
	}
	// Grouped topics nest one level down.
	var topics []ddgTopic
	for _, topic := range payload.RelatedTopics {
		if len(topic.Topics) > 0 {
			topics = append(topics, topic.Topics...)
			continue
		}
		topics = append(topics, topic)
	}
	for _, topic := range topics {
		if len(results) >= count {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		results = append(results, Result{Title: title(topic.Text), URL: topic.FirstURL, Snippet: topic.Text})
	}
	return results, nil
}

// title takes the lead of a topic text, which DuckDuckGo separates with " - ".
func title(text string) string {
	if head, _, ok := strings.Cut(text, " - "); ok {
		text = head
	}
	if r := []rune(text); len(r) > 100 {
		return string(r[:100])
	}
	return text
}

func toolError(message string) *agent.ToolResult {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
