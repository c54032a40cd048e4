package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// scriptedProvider replays one scripted reply per Complete call and records
// the requests it saw. Once the script runs out it keeps answering "done".
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []*CompletionRequest
	noTools  bool
}

type scriptedReply struct {
	text         string
	calls        []ToolCallRequest
	err          error
	streamErr    error
	inputTokens  int
	outputTokens int
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) SupportsTools() bool { return !p.noTools }

func (p *scriptedProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	reply := scriptedReply{text: "done"}
	if len(p.replies) > 0 {
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	p.mu.Unlock()

	if reply.err != nil {
		return nil, reply.err
	}
	ch := make(chan *CompletionChunk, len(reply.calls)+3)
	if reply.text != "" {
		ch <- &CompletionChunk{Text: reply.text}
	}
	for i := range reply.calls {
		call := reply.calls[i]
		ch <- &CompletionChunk{ToolCall: &call}
	}
	if reply.streamErr != nil {
		ch <- &CompletionChunk{Error: reply.streamErr, Done: true}
	} else {
		ch <- &CompletionChunk{Done: true, InputTokens: reply.inputTokens, OutputTokens: reply.outputTokens}
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) seen() []*CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*CompletionRequest(nil), p.requests...)
}

// echoTool returns its message argument as {"echo": message}.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echo back the input message" }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`)
}
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	var in struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, err
	}
	out, _ := json.Marshal(map[string]string{"echo": in.Message})
	return &ToolResult{Content: string(out)}, nil
}

// funcTool adapts a function into a Tool with an open schema.
type funcTool struct {
	name string
	fn   func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (t funcTool) Name() string            { return t.name }
func (t funcTool) Description() string     { return "test tool " + t.name }
func (t funcTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (t funcTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	return t.fn(ctx, params)
}

var errBoom = errors.New("boom")

func newTestRegistry(tools ...Tool) *ToolRegistry {
	reg := NewToolRegistry()
	for _, t := range tools {
		reg.Register(t)
	}
	return reg
}

// collectEvents returns a sink and an accessor for the events it received.
func collectEvents() (EventSink, func() []Event) {
	var mu sync.Mutex
	var events []Event
	sink := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	return sink, func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}
}
