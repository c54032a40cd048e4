package providers

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/haasonsaas/conductor/internal/agent"
)

func TestRouterSelectModel(t *testing.T) {
	r := NewRouter("", "")
	if got := r.SelectModel("draft"); got != DefaultModel {
		t.Fatalf("expected %s, got %s", DefaultModel, got)
	}
	if got := r.SelectModel("verify"); got != DefaultVerificationModel {
		t.Fatalf("expected %s, got %s", DefaultVerificationModel, got)
	}
}

func TestRouterEstimateCost(t *testing.T) {
	r := NewRouter("", "")
	tests := []struct {
		model string
		want  float64
	}{
		{"openai/gpt-4o-mini", 1000 * cheapTokenCost},
		{"anthropic/claude-3-haiku", 1000 * cheapTokenCost},
		{"openai/gpt-4", 1000 * expensiveTokenCost},
		{"anthropic/claude-3-opus", 1000 * expensiveTokenCost},
		{"meta/llama-3", 1000 * defaultTokenCost},
	}
	for _, tt := range tests {
		if got := r.EstimateCost(tt.model, 1000); math.Abs(got-tt.want) > 1e-12 {
			t.Fatalf("expected %v for %s, got %v", tt.want, tt.model, got)
		}
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), "nope", Settings{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	p, err := New(context.Background(), "openrouter", Settings{APIKey: "k"})
	if err != nil || p.Name() != "openrouter" {
		t.Fatalf("expected openrouter provider, got %v (%v)", p, err)
	}
}

type stubProvider struct {
	name  string
	err   error
	calls int
	model string
}

func (s *stubProvider) Name() string        { return s.name }
func (s *stubProvider) SupportsTools() bool { return true }
func (s *stubProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	s.calls++
	s.model = req.Model
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: s.name, Done: true}
	close(ch)
	return ch, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubProvider{name: "b"})
	reg.Register(&stubProvider{name: "a"})
	if names := reg.Names(); len(names) != 2 || names[0] != "a" {
		t.Fatalf("expected sorted names, got %v", names)
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("expected missing provider")
	}
}

func TestFailoverProvider(t *testing.T) {
	primary := &stubProvider{name: "primary", err: NewProviderError("primary", "", errors.New("x")).WithStatus(401)}
	backup := &stubProvider{name: "backup"}
	f := NewFailover(nil, primary, backup)

	ch, err := f.Complete(context.Background(), &agent.CompletionRequest{Model: "primary/model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunk := <-ch
	if chunk.Text != "backup" {
		t.Fatalf("expected backup stream, got %q", chunk.Text)
	}
	if backup.model != "" {
		t.Fatalf("expected fallback to use its default model, got %q", backup.model)
	}

	invalid := &stubProvider{name: "primary", err: NewProviderError("primary", "", errors.New("x")).WithStatus(400)}
	backup.calls = 0
	f = NewFailover(nil, invalid, backup)
	if _, err := f.Complete(context.Background(), &agent.CompletionRequest{}); err == nil {
		t.Fatal("expected invalid request not to fail over")
	}
	if backup.calls != 0 {
		t.Fatalf("expected backup untouched, got %d calls", backup.calls)
	}

	if _, err := NewFailover(nil).Complete(context.Background(), &agent.CompletionRequest{}); !errors.Is(err, agent.ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}
