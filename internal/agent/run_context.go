package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default per-run limits.
const (
	DefaultMaxTimeSeconds = 180
	DefaultMaxToolCalls   = 15
	DefaultMaxTokens      = 64000
	DefaultMaxCost        = 5.0
)

// Limits are the four caps a run is bounded by.
type Limits struct {
	MaxTimeSeconds int     `json:"max_time_seconds" yaml:"max_time_seconds"`
	MaxToolCalls   int     `json:"max_tool_calls" yaml:"max_tool_calls"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens"`
	MaxCost        float64 `json:"max_cost" yaml:"max_cost"`
}

// DefaultLimits returns the built-in caps.
func DefaultLimits() Limits {
	return Limits{
		MaxTimeSeconds: DefaultMaxTimeSeconds,
		MaxToolCalls:   DefaultMaxToolCalls,
		MaxTokens:      DefaultMaxTokens,
		MaxCost:        DefaultMaxCost,
	}
}

// RunContext tracks one run's identity, budgets and terminal state.
//
// Counters only grow. Once the run is completed or stopped the Record*
// methods are no-ops, so a finished run's usage is frozen.
type RunContext struct {
	RunID     string
	SessionID string
	StartedAt time.Time
	Limits    Limits

	mu         sync.Mutex
	toolCalls  int
	tokensUsed int
	cost       float64
	completed  bool
	stopped    bool
	stopReason string

	now func() time.Time
}

// NewRunContext creates a run with a fresh id. Zero-valued limits fall back to
// the defaults.
func NewRunContext(sessionID string, limits Limits) *RunContext {
	def := DefaultLimits()
	if limits.MaxTimeSeconds <= 0 {
		limits.MaxTimeSeconds = def.MaxTimeSeconds
	}
	if limits.MaxToolCalls <= 0 {
		limits.MaxToolCalls = def.MaxToolCalls
	}
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = def.MaxTokens
	}
	if limits.MaxCost <= 0 {
		limits.MaxCost = def.MaxCost
	}
	return &RunContext{
		RunID:     uuid.NewString(),
		SessionID: sessionID,
		StartedAt: time.Now(),
		Limits:    limits,
		now:       time.Now,
	}
}

func (rc *RunContext) terminal() bool {
	return rc.completed || rc.stopped
}

// RecordToolCall counts one issued tool call.
func (rc *RunContext) RecordToolCall() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.terminal() {
		return
	}
	rc.toolCalls++
}

// RecordTokens adds n tokens. Non-positive values are ignored.
func (rc *RunContext) RecordTokens(n int) {
	if n <= 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.terminal() {
		return
	}
	rc.tokensUsed += n
}

// RecordCost adds an advisory cost. Non-positive values are ignored.
func (rc *RunContext) RecordCost(c float64) {
	if c <= 0 {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.terminal() {
		return
	}
	rc.cost += c
}

// HasBudgetRemaining reports whether every counter is still under its cap.
func (rc *RunContext) HasBudgetRemaining() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.toolCalls < rc.Limits.MaxToolCalls &&
		rc.tokensUsed < rc.Limits.MaxTokens &&
		rc.cost < rc.Limits.MaxCost
}

// Elapsed returns wall time since the run started.
func (rc *RunContext) Elapsed() time.Duration {
	now := time.Now
	if rc.now != nil {
		now = rc.now
	}
	return now().Sub(rc.StartedAt)
}

// IsTimedOut reports whether the wall-time cap has been reached.
func (rc *RunContext) IsTimedOut() bool {
	return rc.Elapsed() >= time.Duration(rc.Limits.MaxTimeSeconds)*time.Second
}

// BudgetExceededReason names the first exhausted budget, checking tool calls,
// then tokens, then cost.
func (rc *RunContext) BudgetExceededReason() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	switch {
	case rc.toolCalls >= rc.Limits.MaxToolCalls:
		return fmt.Sprintf("Tool call limit reached (%d/%d). Increase limits.max_tool_calls",
			rc.toolCalls, rc.Limits.MaxToolCalls)
	case rc.tokensUsed >= rc.Limits.MaxTokens:
		return fmt.Sprintf("Token limit reached (used %d, limit %d). Increase limits.max_tokens",
			rc.tokensUsed, rc.Limits.MaxTokens)
	case rc.cost >= rc.Limits.MaxCost:
		return fmt.Sprintf("Cost limit reached ($%.2f, limit $%.2f). Increase limits.max_cost",
			rc.cost, rc.Limits.MaxCost)
	default:
		return "Budget exhausted"
	}
}

// MarkCompleted flags the run as finished normally.
func (rc *RunContext) MarkCompleted() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.completed = true
}

// MarkStopped flags the run as stopped. Repeated calls keep the last reason.
func (rc *RunContext) MarkStopped(reason string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.stopped = true
	rc.stopReason = reason
}

// ToolCalls returns the number of recorded tool calls.
func (rc *RunContext) ToolCalls() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.toolCalls
}

// TokensUsed returns the number of recorded tokens.
func (rc *RunContext) TokensUsed() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.tokensUsed
}

// Cost returns the recorded advisory cost.
func (rc *RunContext) Cost() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cost
}

// RunState is the coarse lifecycle state reported by Status.
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateStopped   RunState = "stopped"
)

// RunStatus is a point-in-time snapshot of a run.
type RunStatus struct {
	RunID          string    `json:"run_id"`
	SessionID      string    `json:"session_id"`
	Status         RunState  `json:"status"`
	StopReason     string    `json:"stop_reason,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	ToolCalls      int       `json:"tool_calls"`
	TokensUsed     int       `json:"tokens_used"`
	Cost           float64   `json:"cost"`
	Limits         Limits    `json:"limits"`
}

// Status returns a snapshot of the run.
func (rc *RunContext) Status() RunStatus {
	elapsed := rc.Elapsed()
	rc.mu.Lock()
	defer rc.mu.Unlock()
	state := RunStateRunning
	switch {
	case rc.stopped:
		state = RunStateStopped
	case rc.completed:
		state = RunStateCompleted
	}
	return RunStatus{
		RunID:          rc.RunID,
		SessionID:      rc.SessionID,
		Status:         state,
		StopReason:     rc.stopReason,
		StartedAt:      rc.StartedAt,
		ElapsedSeconds: elapsed.Seconds(),
		ToolCalls:      rc.toolCalls,
		TokensUsed:     rc.tokensUsed,
		Cost:           rc.cost,
		Limits:         rc.Limits,
	}
}
