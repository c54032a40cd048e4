package agent

import (
	"errors"
	"fmt"
)

var (
	ErrNoProvider       = errors.New("no provider configured")
	ErrContextCancelled = errors.New("context cancelled")
	ErrToolNotFound     = errors.New("tool not found")
	ErrToolPanic        = errors.New("tool panicked")
)

// ToolFailure is returned by the executor when a call could not produce a
// result at all, as opposed to a tool reporting an unsuccessful result.
type ToolFailure struct {
	Tool   string
	CallID string
	Err    error

	// Stack is set when the tool panicked. It is not part of Error.
	Stack []byte
}

func (f *ToolFailure) Error() string {
	return fmt.Sprintf("tool %s: %v", f.Tool, f.Err)
}

func (f *ToolFailure) Unwrap() error { return f.Err }

// Stage names the part of a run where a LoopError was raised.
type Stage string

const (
	StageDecide  Stage = "decide"
	StagePending Stage = "execute_pending"
)

// LoopError wraps a failure that ends a run early.
type LoopError struct {
	Stage Stage
	Step  int
	Err   error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%s failed at step %d: %v", e.Stage, e.Step, e.Err)
}

func (e *LoopError) Unwrap() error { return e.Err }
