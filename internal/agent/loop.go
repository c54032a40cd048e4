package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/memory"
	"github.com/haasonsaas/conductor/internal/observability"
)

// Mode selects how much the loop polices a run.
type Mode string

const (
	// ModeFree skips guardrails and the quality check.
	ModeFree Mode = "free"
	// ModeRestrained runs guardrails and the quality check.
	ModeRestrained Mode = "restrained"
)

const (
	// DefaultMaxIterations caps loop passes per run.
	DefaultMaxIterations = 50

	// DefaultCompletionTokens caps max_tokens for a single model call.
	DefaultCompletionTokens = 4000
)

// Prompts the loop sends in place of the user message after step 0.
const (
	synthesizePrompt = "Using the tool results above, provide your final answer to the user. Do not call additional tools unless strictly necessary."
	continuePrompt   = "Continue based on tool results."
	confirmedPrompt  = "The user confirmed. Using the tool results above, provide your final answer to the user."
)

// ModelRouter picks a model for an intent and estimates what a call cost.
// providers.Router implements it.
type ModelRouter interface {
	SelectModel(intent string) string
	EstimateCost(model string, tokens int) float64
}

// LoopConfig configures the loop.
type LoopConfig struct {
	// Mode is free or restrained. Default: free
	Mode Mode

	// MaxIterations limits loop passes. Default: 50
	MaxIterations int

	// MaxCompletionTokens caps max_tokens per model call; the run's token
	// limit lowers it further. Default: 4000
	MaxCompletionTokens int

	// RequireConfirmation holds tool calls until the user replies "confirm".
	RequireConfirmation bool

	// Guardrails screens tool arguments before execution.
	Guardrails bool

	// AllowedTools restricts which tools the model may call. Empty or "*"
	// allows every registered tool.
	AllowedTools []string
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		Mode:                ModeFree,
		MaxIterations:       DefaultMaxIterations,
		MaxCompletionTokens: DefaultCompletionTokens,
	}
}

func sanitizeLoopConfig(config *LoopConfig) *LoopConfig {
	if config == nil {
		return DefaultLoopConfig()
	}
	cfg := *config
	if cfg.Mode == "" {
		cfg.Mode = ModeFree
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxCompletionTokens <= 0 {
		cfg.MaxCompletionTokens = DefaultCompletionTokens
	}
	return &cfg
}

// LoopOptions carries the loop's collaborators. Only Provider is required.
type LoopOptions struct {
	Provider LLMProvider
	Registry *ToolRegistry
	Builder  *ContextBuilder
	STM      *memory.ShortTermMemory
	Writer   *memory.Writer
	Pending  *PendingStore
	Router   ModelRouter
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Logger   *slog.Logger
}

// Loop runs budget-bounded conversations between a model and the tool
// registry. It is safe for concurrent use; each Run owns its own state and
// only the STM, pending store and registry are shared.
//
// Each pass checks the budget and the clock, asks Decide for the next action
// and carries it out:
//
//	CallModel ──▶ CallTool ──▶ CallModel ──▶ Finish
//	    │            │
//	    ▼            ▼
//	 Clarify    confirmation
type Loop struct {
	provider   LLMProvider
	registry   *ToolRegistry
	selector   *ToolSelector
	guardrails *Guardrails
	executor   *Executor
	quality    *QualityChecker
	builder    *ContextBuilder
	stm        *memory.ShortTermMemory
	writer     *memory.Writer
	pending    *PendingStore
	router     ModelRouter
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger
	config     *LoopConfig
}

// NewLoop creates a loop. Missing collaborators get in-memory defaults.
func NewLoop(opts LoopOptions, config *LoopConfig) *Loop {
	config = sanitizeLoopConfig(config)
	if opts.Registry == nil {
		opts.Registry = NewToolRegistry()
	}
	if opts.STM == nil {
		opts.STM = memory.NewShortTermMemory(memory.DefaultSTMTurns)
	}
	if opts.Pending == nil {
		opts.Pending = NewPendingStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Builder == nil {
		opts.Builder = NewContextBuilder(ContextConfig{}, opts.Registry, opts.STM, nil, opts.Logger)
	}

	return &Loop{
		provider:   opts.Provider,
		registry:   opts.Registry,
		selector:   NewToolSelector(opts.Registry, config.AllowedTools),
		guardrails: NewGuardrails(),
		executor:   NewExecutor(opts.Registry, opts.Metrics, opts.Tracer),
		quality:    NewQualityChecker(),
		builder:    opts.Builder,
		stm:        opts.STM,
		writer:     opts.Writer,
		pending:    opts.Pending,
		router:     opts.Router,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		logger:     opts.Logger.With("component", "agent_loop"),
		config:     config,
	}
}

// Config returns a copy of the active configuration.
func (l *Loop) Config() LoopConfig {
	return *l.config
}

// Registry returns the tool registry the loop executes against.
func (l *Loop) Registry() *ToolRegistry {
	return l.registry
}

// Pending returns the store holding confirmation requests.
func (l *Loop) Pending() *PendingStore {
	return l.pending
}

// RunInput is one user turn.
type RunInput struct {
	Message   string
	SessionID string

	// Run carries the limits and counters. Nil creates one with default limits.
	Run *RunContext

	// Emit receives progress events. Nil discards them.
	Emit EventSink
}

// Process handles a user turn: a confirmation reply releases the session's
// pending tool calls, anything else starts a new run. Non-confirm replies
// leave a pending entry in place.
func (l *Loop) Process(ctx context.Context, in RunInput) *Response {
	if pending, ok := l.pending.PopIfConfirm(in.SessionID, in.Message); ok {
		return l.ExecutePending(ctx, in, pending)
	}
	return l.Run(ctx, in)
}

// runState is the mutable state of one run.
type runState struct {
	run         *RunContext
	sessionID   string
	userMessage string
	emit        EventSink
	start       time.Time

	step        int
	last        *ModelOutput
	assistant   *CompletionMessage
	toolResults []CompletionMessage

	calls   []ToolCall
	results []ToolCallResult
	steps   []RunStep
}

func (l *Loop) newState(in RunInput) *runState {
	run := in.Run
	if run == nil {
		run = NewRunContext(in.SessionID, DefaultLimits())
	}
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = run.SessionID
	}
	return &runState{
		run:         run,
		sessionID:   sessionID,
		userMessage: in.Message,
		emit:        in.Emit,
		start:       time.Now(),
	}
}

func (l *Loop) runContext(ctx context.Context, st *runState) context.Context {
	ctx = WithSessionID(ctx, st.sessionID)
	ctx = observability.AddSessionID(ctx, st.sessionID)
	return observability.AddRunID(ctx, st.run.RunID)
}

// Run executes the loop for one user message and always returns a response.
// Provider failures, panics and exhausted limits end the run with a graceful
// stop message rather than an error.
func (l *Loop) Run(ctx context.Context, in RunInput) (resp *Response) {
	st := l.newState(in)
	ctx = l.runContext(ctx, st)
	ctx, span := l.tracer.TraceRun(ctx, st.run.RunID, st.sessionID)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "run panicked", "panic", r, "step", st.step)
			resp = l.stop(ctx, st, fmt.Sprintf("Error: %v", r))
		}
	}()

	l.stm.Append(st.sessionID, RoleUser, st.userMessage)

	for {
		if !st.run.HasBudgetRemaining() {
			return l.stop(ctx, st, st.run.BudgetExceededReason())
		}
		if st.run.IsTimedOut() {
			return l.stop(ctx, st, "Time limit reached")
		}
		if err := ctx.Err(); err != nil {
			return l.stop(ctx, st, fmt.Sprintf("Error: %v", err))
		}

		decision := Decide(DecisionInput{
			Run:          st.run,
			Step:         st.step,
			LastResponse: st.last,
			ToolResults:  len(st.toolResults),
		})
		l.logger.DebugContext(ctx, "decision", "step", st.step, "kind", decision.Kind)

		switch decision.Kind {
		case DecisionClarify:
			return l.clarify(ctx, st, decision.Question)

		case DecisionCallModel:
			if err := l.callModel(ctx, st); err != nil {
				return l.fail(ctx, st, err)
			}

		case DecisionCallTool:
			done, err := l.callTools(ctx, st, decision.ToolCalls)
			if err != nil {
				return l.fail(ctx, st, err)
			}
			if done != nil {
				return done
			}

		case DecisionFinish:
			if decision.StopReason != "" {
				return l.stop(ctx, st, decision.StopReason)
			}
			if l.config.Mode != ModeFree {
				if q := l.quality.Check(decision.FinalAnswer); q.NeedsFix {
					st.last = &ModelOutput{Content: fmt.Sprintf("Quality check failed: %s. Please fix.", q.Reason)}
					break
				}
			}
			return l.finish(ctx, st, decision.FinalAnswer)
		}

		st.step++
		if st.step > l.config.MaxIterations {
			return l.stop(ctx, st, "Max iterations reached")
		}
	}
}

// callModel builds the prompt for the current step and records the reply.
func (l *Loop) callModel(ctx context.Context, st *runState) error {
	prompt := st.userMessage
	if st.step > 0 {
		if len(st.toolResults) > 0 {
			prompt = synthesizePrompt
		} else {
			prompt = continuePrompt
		}
	}

	in := BuildInput{SessionID: st.sessionID, UserMessage: prompt, Run: st.run}
	if len(st.toolResults) > 0 {
		in.AssistantMessage = st.assistant
		in.ToolResults = st.toolResults
	}

	completion, err := l.complete(ctx, st, in, st.step == 0)
	if err != nil {
		return &LoopError{Stage: StageDecide, Step: st.step, Err: err}
	}

	st.last = &ModelOutput{Content: completion.Content, ToolCalls: completion.ToolCalls}
	if strings.TrimSpace(completion.Content) != "" {
		st.emit.reasoning(completion.Content)
	}
	if len(completion.ToolCalls) > 0 {
		st.assistant = &CompletionMessage{
			Role:      RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		}
		st.toolResults = nil
		// Answers and questions are recorded by finish and clarify.
		if completion.Content != "" {
			l.stm.Append(st.sessionID, RoleAssistant, completion.Content)
		}
	} else {
		st.assistant = nil
	}
	return nil
}

// complete sends one model request and charges its tokens and cost to the run.
func (l *Loop) complete(ctx context.Context, st *runState, in BuildInput, withTools bool) (*Completion, error) {
	if l.provider == nil {
		return nil, ErrNoProvider
	}

	model := ""
	if l.router != nil {
		model = l.router.SelectModel("draft")
	}
	maxTokens := l.config.MaxCompletionTokens
	if limit := st.run.Limits.MaxTokens; limit > 0 && limit < maxTokens {
		maxTokens = limit
	}
	req := &CompletionRequest{
		Model:     model,
		Messages:  l.builder.Build(ctx, in),
		MaxTokens: maxTokens,
	}
	if withTools && l.provider.SupportsTools() {
		req.Tools = l.allowedTools()
	}

	ctx, span := l.tracer.TraceLLMRequest(ctx, l.provider.Name(), model)
	defer span.End()

	start := time.Now()
	completion, err := Collect(ctx, l.provider, req, nil)
	status := "success"
	tokens := 0
	if err != nil {
		status = "error"
		observability.RecordError(span, err)
	} else {
		tokens = completion.TotalTokens()
	}
	l.metrics.RecordLLMRequest(l.provider.Name(), model, status, time.Since(start).Seconds(), tokens)
	if err != nil {
		return nil, err
	}

	st.run.RecordTokens(tokens)
	if l.router != nil {
		st.run.RecordCost(l.router.EstimateCost(model, tokens))
	}
	return completion, nil
}

func (l *Loop) allowedTools() []Tool {
	all := l.registry.List()
	tools := make([]Tool, 0, len(all))
	for _, t := range all {
		if l.selector.IsAllowed(t.Name()) {
			tools = append(tools, t)
		}
	}
	return tools
}

// callTools validates and runs the requested calls. It returns a response
// when the run pauses for confirmation.
func (l *Loop) callTools(ctx context.Context, st *runState, requests []ToolCallRequest) (*Response, error) {
	valid, errs := l.selector.Select(requests)
	if len(valid) == 0 {
		st.last = &ModelOutput{Content: "Tool validation errors: " + strings.Join(errs, "; ")}
		return nil, nil
	}
	if len(errs) > 0 {
		l.logger.WarnContext(ctx, "dropping invalid tool calls", "errors", errs)
	}

	if l.config.RequireConfirmation {
		return l.requestConfirmation(ctx, st, valid), nil
	}

	resultsStart := len(st.results)
	callsStart := len(st.calls)
	for _, call := range valid {
		if st.run.ToolCalls() >= st.run.Limits.MaxToolCalls {
			break
		}
		st.run.RecordToolCall()
		l.runTool(ctx, st, call, l.config.Guardrails)
	}

	reasoning := strings.TrimSpace(st.last.Content)
	step := RunStep{
		ToolCalls:   append([]ToolCall(nil), st.calls[callsStart:]...),
		ToolResults: append([]ToolCallResult(nil), st.results[resultsStart:]...),
	}
	if reasoning != "" {
		step.Reasoning = &reasoning
	}
	st.steps = append(st.steps, step)
	st.assistant = withCallsFrom(st.assistant, st.calls[callsStart:])

	// The results are now in the buffer; the next pass asks the model to use them.
	st.last = nil
	return nil, nil
}

// runTool executes one call and appends it, its result and its model-facing
// observation to the run state.
func (l *Loop) runTool(ctx context.Context, st *runState, call ToolCall, guard bool) {
	st.emit.toolCall(call)

	var res ToolExecutionResult
	args := call.Arguments
	verdict := GuardrailVerdict{Allowed: true}
	if guard {
		verdict = l.guardrails.Check(call)
	}
	// The tool always receives the model's arguments; the redacted copy is
	// only for logs.
	if verdict.Allowed {
		if guard {
			l.logger.DebugContext(ctx, "executing tool", "tool", call.Name, "arguments", verdict.Arguments)
		}
		res = l.executor.Execute(ctx, call, func(stream, line string) {
			st.emit.toolOutput(call.Name, stream, line)
		})
	} else {
		l.metrics.RecordGuardrailDenial(verdict.Reason)
		l.logger.WarnContext(ctx, "tool call denied", "tool", call.Name, "reason", verdict.Reason,
			"arguments", l.guardrails.Redact(call.Arguments))
		res = ToolExecutionResult{Error: verdict.Reason}
	}

	obs := BuildObservation(call.Name, args, res)
	result := ToolCallResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    res.Content,
		Success:    res.Success,
		DurationMs: res.Duration.Milliseconds(),
	}
	if !res.Success {
		result.Content = res.Error
	}

	st.calls = append(st.calls, call)
	st.results = append(st.results, result)
	st.emit.toolResult(result)
	st.toolResults = append(st.toolResults, CompletionMessage{
		Role:       RoleTool,
		Content:    obs.ModelContent(),
		ToolCallID: call.ID,
		Name:       call.Name,
	})
	l.writer.ConsiderWrite(ctx, st.sessionID, call.Name, res.Content, res.Success)
}

// requestConfirmation parks the calls in the pending store and asks the user
// to confirm them.
func (l *Loop) requestConfirmation(ctx context.Context, st *runState, calls []ToolCall) *Response {
	lines := make([]string, 0, len(calls))
	for _, call := range calls {
		if code, ok := call.Arguments["code"]; ok && call.Name == "run_python" {
			lines = append(lines, fmt.Sprintf("run_python:\n```\n%v\n```", code))
			continue
		}
		args, _ := json.Marshal(call.Arguments)
		lines = append(lines, fmt.Sprintf("%s(%s)", call.Name, args))
	}
	msg := "I want to run:\n" + strings.Join(lines, "\n") + "\n\nType **confirm** to run."

	pending := PendingConfirmation{
		UserMessage:      st.userMessage,
		AssistantMessage: withCallsFrom(st.assistant, calls),
		ToolCalls:        calls,
	}
	l.pending.Put(st.sessionID, pending)

	resp := l.response(st, msg, false)
	resp.RequiresConfirmation = true
	resp.PendingState = &pending

	l.logger.InfoContext(ctx, "awaiting confirmation", "tools", len(calls))
	l.metrics.RecordRun("confirmation", time.Since(st.start).Seconds())
	st.emit.message(msg)
	st.emit.done(resp)
	return resp
}

func (l *Loop) clarify(ctx context.Context, st *runState, question string) *Response {
	st.emit.reasoning(question)
	l.stm.Append(st.sessionID, RoleAssistant, question)
	resp := l.response(st, question, false)
	l.metrics.RecordRun("clarify", time.Since(st.start).Seconds())
	st.emit.done(resp)
	return resp
}

func (l *Loop) finish(ctx context.Context, st *runState, answer string) *Response {
	st.emit.message(answer)
	l.stm.Append(st.sessionID, RoleAssistant, answer)
	st.run.MarkCompleted()

	resp := l.response(st, answer, true)
	resp.Usage = &Usage{TotalTokens: st.run.TokensUsed(), ToolCalls: st.run.ToolCalls()}

	l.logger.InfoContext(ctx, "run completed",
		"steps", len(st.steps),
		"tool_calls", st.run.ToolCalls(),
		"tokens", st.run.TokensUsed(),
		"duration_ms", resp.DurationMs,
	)
	l.metrics.RecordRun("completed", time.Since(st.start).Seconds())
	st.emit.done(resp)
	return resp
}

// fail ends the run on an unexpected error.
func (l *Loop) fail(ctx context.Context, st *runState, err error) *Response {
	l.logger.ErrorContext(ctx, "run failed", "error", err)
	cause := err
	var loopErr *LoopError
	if errors.As(err, &loopErr) && loopErr.Err != nil {
		cause = loopErr.Err
	}
	return l.stop(ctx, st, fmt.Sprintf("Error: %v", cause))
}

// stop ends the run gracefully with whatever was gathered so far.
func (l *Loop) stop(ctx context.Context, st *runState, reason string) *Response {
	msg := BuildStopMessage(reason)
	st.run.MarkStopped(reason)

	resp := l.response(st, msg, true)
	resp.NextSteps = BuildNextSteps(reason)
	resp.Usage = &Usage{TotalTokens: st.run.TokensUsed(), ToolCalls: st.run.ToolCalls()}

	l.logger.WarnContext(ctx, "run stopped", "reason", reason, "step", st.step)
	l.metrics.RecordRun("stopped", time.Since(st.start).Seconds())
	st.emit.message(msg)
	st.emit.done(resp)
	return resp
}

func (l *Loop) response(st *runState, message string, final bool) *Response {
	return &Response{
		RunID:       st.run.RunID,
		SessionID:   st.sessionID,
		Message:     message,
		IsFinal:     final,
		ToolCalls:   nonNilCalls(st.calls),
		ToolResults: nonNilResults(st.results),
		Steps:       nonNilSteps(st.steps),
		DurationMs:  time.Since(st.start).Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
}

// ExecutePending runs tool calls the user confirmed, then asks the model for
// a final answer without offering tools. Guardrails still apply when enabled.
func (l *Loop) ExecutePending(ctx context.Context, in RunInput, pending PendingConfirmation) (resp *Response) {
	st := l.newState(in)
	st.userMessage = pending.UserMessage
	st.assistant = pending.AssistantMessage
	ctx = l.runContext(ctx, st)
	ctx, span := l.tracer.TraceRun(ctx, st.run.RunID, st.sessionID)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "pending execution panicked", "panic", r)
			resp = l.stop(ctx, st, fmt.Sprintf("Error: %v", r))
		}
	}()

	for _, call := range pending.ToolCalls {
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		st.run.RecordToolCall()
		l.runTool(ctx, st, call, l.config.Guardrails)
	}

	completion, err := l.complete(ctx, st, BuildInput{
		SessionID:        st.sessionID,
		UserMessage:      confirmedPrompt,
		Run:              st.run,
		AssistantMessage: st.assistant,
		ToolResults:      st.toolResults,
	}, false)
	if err != nil {
		return l.fail(ctx, st, &LoopError{Stage: StagePending, Err: err})
	}

	answer := strings.TrimSpace(completion.Content)
	if answer != "" {
		l.stm.Append(st.sessionID, RoleAssistant, answer)
	} else {
		answer = "Done."
	}
	st.run.MarkCompleted()

	resp = l.response(st, answer, true)
	resp.Usage = &Usage{TotalTokens: st.run.TokensUsed(), ToolCalls: len(st.calls)}
	l.metrics.RecordRun("completed", time.Since(st.start).Seconds())
	st.emit.message(answer)
	st.emit.done(resp)
	return resp
}

// withCallsFrom returns a copy of msg that keeps only the tool calls whose
// ids appear in issued, so every call in the assistant turn has a result.
func withCallsFrom(msg *CompletionMessage, issued []ToolCall) *CompletionMessage {
	if msg == nil {
		return nil
	}
	ids := make(map[string]bool, len(issued))
	for _, call := range issued {
		ids[call.ID] = true
	}
	out := *msg
	out.ToolCalls = nil
	for _, call := range msg.ToolCalls {
		if ids[call.ID] {
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	return &out
}

func nonNilCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return []ToolCall{}
	}
	return append([]ToolCall(nil), calls...)
}

func nonNilResults(results []ToolCallResult) []ToolCallResult {
	if results == nil {
		return []ToolCallResult{}
	}
	return append([]ToolCallResult(nil), results...)
}

func nonNilSteps(steps []RunStep) []RunStep {
	if steps == nil {
		return []RunStep{}
	}
	return append([]RunStep(nil), steps...)
}
