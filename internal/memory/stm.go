package memory

import (
	"sync"
	"time"
)

// DefaultSTMTurns is the number of messages kept per session.
const DefaultSTMTurns = 20

// Message is one turn held in short-term memory.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ShortTermMemory keeps the most recent turns of each session in memory.
// Older turns fall off once a session holds maxTurns messages.
type ShortTermMemory struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]Message
}

// NewShortTermMemory creates a store bounded to maxTurns messages per session.
func NewShortTermMemory(maxTurns int) *ShortTermMemory {
	if maxTurns <= 0 {
		maxTurns = DefaultSTMTurns
	}
	return &ShortTermMemory{
		maxTurns: maxTurns,
		sessions: make(map[string][]Message),
	}
}

// Append records a message for sessionID.
func (m *ShortTermMemory) Append(sessionID, role, content string) {
	m.AppendWithMetadata(sessionID, role, content, nil)
}

// AppendWithMetadata records a message with attached metadata.
func (m *ShortTermMemory) AppendWithMetadata(sessionID, role, content string, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := append(m.sessions[sessionID], Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
	if over := len(msgs) - m.maxTurns; over > 0 {
		msgs = append([]Message(nil), msgs[over:]...)
	}
	m.sessions[sessionID] = msgs
}

// Recent returns the last n messages, or all of them when n <= 0.
func (m *ShortTermMemory) Recent(sessionID string, n int) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.sessions[sessionID]
	if n > 0 && n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// All returns every message held for sessionID, oldest first.
func (m *ShortTermMemory) All(sessionID string) []Message {
	return m.Recent(sessionID, 0)
}

// Clear drops the session's history.
func (m *ShortTermMemory) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// MaxTurns returns the per-session bound.
func (m *ShortTermMemory) MaxTurns() int {
	return m.maxTurns
}
