package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracer_NoEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	if tracer == nil {
		t.Fatal("expected tracer, got nil")
	}
	if tracer.config.ServiceName != "conductor" {
		t.Fatalf("expected default service name conductor, got %q", tracer.config.ServiceName)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil shutdown error, got %v", err)
	}
}

func TestTracer_SpanHelpers(t *testing.T) {
	tracer, _ := NewTracer(TraceConfig{ServiceName: "test"})
	ctx := context.Background()

	ctx, run := tracer.TraceRun(ctx, "run-1", "sess-1")
	_, llm := tracer.TraceLLMRequest(ctx, "openrouter", "model")
	_, tool := tracer.TraceToolExecution(ctx, "echo", "call-1")
	_, httpSpan := tracer.TraceHTTPRequest(ctx, "POST", "/api/v1/agent/run")

	RecordError(tool, errors.New("boom"))
	RecordError(tool, nil)
	httpSpan.End()
	tool.End()
	llm.End()
	run.End()
}

func TestTracer_NilSafe(t *testing.T) {
	var tracer *Tracer
	ctx := context.Background()
	got, span := tracer.Start(ctx, "noop")
	if got != ctx {
		t.Fatal("expected unchanged context from nil tracer")
	}
	span.End()
	if id := GetTraceID(ctx); id != "" {
		t.Fatalf("expected empty trace id, got %q", id)
	}
}

func TestSamplerFor(t *testing.T) {
	cases := map[float64]string{
		0:    "AlwaysOnSampler",
		1:    "AlwaysOnSampler",
		-1:   "AlwaysOffSampler",
		0.25: "TraceIDRatioBased{0.25}",
	}
	for rate, want := range cases {
		if got := samplerFor(rate).Description(); got != want {
			t.Fatalf("rate %g: expected %s, got %s", rate, want, got)
		}
	}
}
