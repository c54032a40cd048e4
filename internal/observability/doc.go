// Package observability provides metrics, structured logging and tracing for
// the conductor server.
//
// # Metrics
//
// Prometheus collectors are created by NewMetrics against a caller-supplied
// registerer and exposed at /metrics. They cover run outcomes, model calls,
// tool executions, guardrail denials, live shell sessions and HTTP traffic.
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordToolExecution("search", "success", time.Since(start).Seconds())
//
// # Logging
//
// NewLogger returns a *slog.Logger whose handler copies correlation ids
// (request_id, session_id, run_id, client_id) from the context onto every
// record and scrubs credentials from messages and attributes.
//
//	ctx = observability.AddRunID(ctx, run.RunID)
//	logger.InfoContext(ctx, "tool executed", "tool", "echo")
//
// # Tracing
//
// NewTracer exports spans over OTLP/gRPC when an endpoint is configured and
// otherwise falls back to the global no-op provider.
package observability
