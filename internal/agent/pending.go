package agent

import (
	"strings"
	"sync"
)

// ConfirmToken is the reply that releases a pending confirmation.
const ConfirmToken = "confirm"

// IsConfirmation reports whether msg is the confirmation token, ignoring case
// and surrounding whitespace.
func IsConfirmation(msg string) bool {
	return strings.ToLower(strings.TrimSpace(msg)) == ConfirmToken
}

// PendingStore holds at most one pending confirmation per session for the
// lifetime of the process. Entries have no expiry.
type PendingStore struct {
	mu      sync.Mutex
	pending map[string]PendingConfirmation
}

// NewPendingStore creates an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{pending: make(map[string]PendingConfirmation)}
}

// Put stores p for sessionID, replacing any earlier entry.
func (s *PendingStore) Put(sessionID string, p PendingConfirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[sessionID] = p
}

// Get returns the pending entry without consuming it.
func (s *PendingStore) Get(sessionID string) (PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[sessionID]
	return p, ok
}

// Pop removes and returns the entry for sessionID.
func (s *PendingStore) Pop(sessionID string) (PendingConfirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[sessionID]
	if ok {
		delete(s.pending, sessionID)
	}
	return p, ok
}

// PopIfConfirm consumes the entry only when msg is the confirmation token.
// Concurrent callers cannot both receive the same entry.
func (s *PendingStore) PopIfConfirm(sessionID, msg string) (PendingConfirmation, bool) {
	if !IsConfirmation(msg) {
		return PendingConfirmation{}, false
	}
	return s.Pop(sessionID)
}

// Len returns the number of sessions awaiting confirmation.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
