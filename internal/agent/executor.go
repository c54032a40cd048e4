package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/haasonsaas/conductor/internal/observability"
)

// ToolExecutionResult is the outcome of running one tool call. Duration is
// always measured, whether the call succeeded or not.
type ToolExecutionResult struct {
	Success  bool
	Content  string
	Duration time.Duration
	Error    string
}

// Executor runs validated tool calls against the registry. Errors and panics
// raised by a tool are converted into failed results; nothing escapes.
type Executor struct {
	registry *ToolRegistry
	metrics  *observability.Metrics
	tracer   *observability.Tracer
}

// NewExecutor creates an executor. Metrics and tracer may be nil.
func NewExecutor(registry *ToolRegistry, metrics *observability.Metrics, tracer *observability.Tracer) *Executor {
	return &Executor{registry: registry, metrics: metrics, tracer: tracer}
}

// Execute runs call and reports its outcome. The output sink, if any, receives
// incremental stdout/stderr lines from streaming tools.
func (e *Executor) Execute(ctx context.Context, call ToolCall, output OutputFunc) ToolExecutionResult {
	start := time.Now()
	ctx, span := e.tracer.TraceToolExecution(ctx, call.Name, call.ID)
	defer span.End()

	ctx = WithOutputFunc(ctx, output)
	result, err := e.invoke(ctx, call)
	res := ToolExecutionResult{Duration: time.Since(start)}

	switch {
	case err != nil:
		res.Error = err.Error()
		observability.RecordError(span, err)
	case result == nil:
		res.Success = true
	case result.IsError:
		res.Error = result.Content
	default:
		res.Success = true
		res.Content = result.Content
	}

	status := "success"
	if !res.Success {
		status = "error"
	}
	e.metrics.RecordToolExecution(call.Name, status, res.Duration.Seconds())
	return res
}

// invoke calls the registry, turning a panic into a ToolFailure.
func (e *Executor) invoke(ctx context.Context, call ToolCall) (result *ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ToolFailure{Tool: call.Name, CallID: call.ID, Err: fmt.Errorf("%w: %v", ErrToolPanic, r), Stack: debug.Stack()}
		}
	}()

	if e.registry == nil {
		return nil, &ToolFailure{Tool: call.Name, CallID: call.ID, Err: ErrToolNotFound}
	}
	result, err = e.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EncodeResult renders a structured tool result the way tools return it to
// the model: indented JSON for objects and lists, plain text for strings.
func EncodeResult(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}
