package agent

// EventType identifies a progress event emitted during a run.
type EventType string

const (
	EventReasoning  EventType = "reasoning"
	EventToolCall   EventType = "tool_call"
	EventToolOutput EventType = "tool_output"
	EventToolResult EventType = "tool_result"
	EventMessage    EventType = "message"
	EventDone       EventType = "done"
)

// Event is a single progress notification. Which fields are set depends on
// Type; a done event always carries the full Response and ends the stream.
type Event struct {
	Type       EventType      `json:"type"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Stream     string         `json:"stream,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Response   *Response      `json:"response,omitempty"`
}

// EventSink receives events in emission order. A nil sink discards them.
type EventSink func(Event)

func (s EventSink) emit(ev Event) {
	if s != nil {
		s(ev)
	}
}

func (s EventSink) reasoning(text string) {
	s.emit(Event{Type: EventReasoning, Content: text})
}

func (s EventSink) message(text string) {
	s.emit(Event{Type: EventMessage, Content: text})
}

func (s EventSink) done(resp *Response) {
	s.emit(Event{Type: EventDone, Response: resp})
}

func (s EventSink) toolCall(call ToolCall) {
	s.emit(Event{Type: EventToolCall, Name: call.Name, Arguments: call.Arguments})
}

func (s EventSink) toolOutput(name, stream, line string) {
	s.emit(Event{Type: EventToolOutput, Name: name, Stream: stream, Content: line})
}

func (s EventSink) toolResult(res ToolCallResult) {
	success := res.Success
	duration := res.DurationMs
	s.emit(Event{
		Type:       EventToolResult,
		Name:       res.Name,
		Content:    res.Content,
		Success:    &success,
		DurationMs: &duration,
	})
}
