package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Run outcomes and wall time
//   - LLM request performance and token consumption
//   - Tool execution patterns, latencies and guardrail denials
//   - Live persistent shell sessions
//   - HTTP API traffic
//
// All methods are safe to call on a nil *Metrics, which records nothing.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordRun("completed", time.Since(start).Seconds())
type Metrics struct {
	// RunCounter counts finished runs.
	// Labels: outcome (completed|stopped|clarify|confirmation|refused)
	RunCounter *prometheus.CounterVec

	// RunDuration measures run wall time in seconds.
	// Buckets: 0.5s, 1s, 5s, 10s, 30s, 60s, 120s, 300s, 600s
	RunDuration prometheus.Histogram

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// GuardrailDenials counts tool calls refused before execution.
	// Labels: reason
	GuardrailDenials *prometheus.CounterVec

	// ShellSessions is the number of live persistent shells.
	ShellSessions prometheus.Gauge

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh prometheus.NewRegistry()
// in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_runs_total",
				Help: "Total number of agent runs by outcome",
			},
			[]string{"outcome"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conductor_run_duration_seconds",
				Help:    "Wall time of agent runs in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_llm_tokens_total",
				Help: "Total number of tokens used by provider and model",
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		GuardrailDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_guardrail_denials_total",
				Help: "Tool calls refused by guardrails",
			},
			[]string{"reason"},
		),

		ShellSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "conductor_shell_sessions_active",
				Help: "Current number of live persistent shell sessions",
			},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunCounter.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("openrouter", "openai/gpt-4o-mini", "success", time.Since(start).Seconds(), 600)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, tokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if tokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordGuardrailDenial counts a refused tool call.
func (m *Metrics) RecordGuardrailDenial(reason string) {
	if m == nil {
		return
	}
	m.GuardrailDenials.WithLabelValues(reason).Inc()
}

// ShellOpened increments the live shell gauge.
func (m *Metrics) ShellOpened() {
	if m == nil {
		return
	}
	m.ShellSessions.Inc()
}

// ShellClosed decrements the live shell gauge.
func (m *Metrics) ShellClosed() {
	if m == nil {
		return
	}
	m.ShellSessions.Dec()
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	metrics.RecordHTTPRequest("POST", "/api/v1/agent/run", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
