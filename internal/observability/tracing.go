package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "conductor"

// TraceConfig selects where spans go. An empty Endpoint keeps tracing on the
// global no-op provider.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Endpoint is an OTLP/gRPC collector address such as "localhost:4317".
	Endpoint string

	// SamplingRate is the recorded fraction of root spans. Zero means 1.
	SamplingRate float64

	// Insecure dials the collector without TLS.
	Insecure bool
}

// Tracer starts the spans of a run: the run itself, each model call, each
// tool call and each HTTP request. A nil *Tracer hands back no-op spans.
type Tracer struct {
	tracer trace.Tracer
	config TraceConfig
}

// NewTracer builds a tracer and the shutdown func that flushes it. Exporter
// setup failures degrade to the no-op provider instead of failing startup.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}
	fallback := &Tracer{tracer: otel.Tracer(config.ServiceName), config: config}
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return fallback, noop
	}

	ctx := context.Background()
	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
	if err != nil {
		return fallback, noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(ctx, config)),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(config.SamplingRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Tracer{tracer: provider.Tracer(config.ServiceName), config: config}, provider.Shutdown
}

func serviceResource(ctx context.Context, config TraceConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return resource.Default()
	}
	return res
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate == 0 || rate >= 1:
		return sdktrace.AlwaysSample()
	case rate < 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func (t *Tracer) start(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// Start opens an internal span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.start(ctx, name, trace.SpanKindInternal, attrs...)
}

func (t *Tracer) TraceRun(ctx context.Context, runID, sessionID string) (context.Context, trace.Span) {
	return t.start(ctx, "agent.run", trace.SpanKindInternal,
		attribute.String("run.id", runID),
		attribute.String("session.id", sessionID))
}

func (t *Tracer) TraceLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.start(ctx, "llm."+provider, trace.SpanKindClient,
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model))
}

func (t *Tracer) TraceToolExecution(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	return t.start(ctx, "tool."+toolName, trace.SpanKindInternal,
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", callID))
}

// TraceHTTPRequest expects the collapsed route label, not the raw path.
func (t *Tracer) TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return t.start(ctx, method+" "+route, trace.SpanKindServer,
		attribute.String("http.method", method),
		attribute.String("http.route", route))
}

// RecordError marks span failed with err. Nil arguments are ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// GetTraceID returns the hex trace id of the span in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
