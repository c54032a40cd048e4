package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/haasonsaas/conductor/internal/agent"
	"github.com/haasonsaas/conductor/internal/tools"
)

const maxPrintedOutput = 500

// printer renders responses and live events for run and chat.
type printer struct {
	out     io.Writer
	verbose bool
}

// Event prints one live event. Reasoning and raw output lines are only
// shown in verbose mode.
func (p *printer) Event(ev agent.Event) {
	switch ev.Type {
	case agent.EventReasoning:
		if p.verbose && strings.TrimSpace(ev.Content) != "" {
			fmt.Fprintf(p.out, "💭 %s\n", ev.Content)
		}
	case agent.EventToolCall:
		fmt.Fprintf(p.out, "%s\n", tools.ResolveToolDisplay(ev.Name, ev.Arguments).Summary())
	case agent.EventToolOutput:
		if p.verbose {
			fmt.Fprintf(p.out, "  │ %s\n", ev.Content)
		}
	case agent.EventToolResult:
		mark := "✓"
		if ev.Success != nil && !*ev.Success {
			mark = "✗"
		}
		if ev.DurationMs != nil {
			fmt.Fprintf(p.out, "  %s %s (%dms)\n", mark, ev.Name, *ev.DurationMs)
		} else {
			fmt.Fprintf(p.out, "  %s %s\n", mark, ev.Name)
		}
	}
}

// Steps prints the tool activity of a finished response.
func (p *printer) Steps(resp *agent.Response) {
	for i, step := range resp.Steps {
		if p.verbose && step.Reasoning != nil && strings.TrimSpace(*step.Reasoning) != "" {
			fmt.Fprintf(p.out, "Step %d: %s\n", i+1, *step.Reasoning)
		}
		for _, call := range step.ToolCalls {
			fmt.Fprintf(p.out, "%s\n", tools.ResolveToolDisplay(call.Name, call.Arguments).Summary())
		}
		for _, result := range step.ToolResults {
			mark := "✓"
			if !result.Success {
				mark = "✗"
			}
			fmt.Fprintf(p.out, "  %s %s (%dms)\n", mark, result.Name, result.DurationMs)
			if p.verbose {
				fmt.Fprintf(p.out, "    %s\n", clip(result.Content, maxPrintedOutput))
			}
		}
	}
}

// Final prints the answer and, in verbose mode, the usage line.
func (p *printer) Final(resp *agent.Response) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, resp.Message)
	if resp.RequiresConfirmation {
		fmt.Fprintln(p.out, `Reply "confirm" to run the pending tool calls.`)
	}
	if p.verbose {
		tokens, calls := 0, len(resp.ToolCalls)
		if resp.Usage != nil {
			tokens, calls = resp.Usage.TotalTokens, resp.Usage.ToolCalls
		}
		fmt.Fprintf(p.out, "\n[run %s · session %s · %d tool calls · %d tokens · %dms]\n",
			resp.RunID, resp.SessionID, calls, tokens, resp.DurationMs)
	}
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
