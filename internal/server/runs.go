package server

import (
	"sync"

	"github.com/haasonsaas/conductor/internal/agent"
)

const maxTrackedRuns = 1000

// runIndex remembers the most recent runs for status lookups. The oldest
// entry is evicted once the index is full.
type runIndex struct {
	mu    sync.Mutex
	max   int
	order []string
	runs  map[string]*agent.RunContext
}

func newRunIndex(max int) *runIndex {
	return &runIndex{
		max:  max,
		runs: make(map[string]*agent.RunContext, max),
	}
}

func (idx *runIndex) add(rc *agent.RunContext) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.runs[rc.RunID]; ok {
		return
	}
	if len(idx.order) >= idx.max {
		oldest := idx.order[0]
		idx.order = idx.order[1:]
		delete(idx.runs, oldest)
	}
	idx.order = append(idx.order, rc.RunID)
	idx.runs[rc.RunID] = rc
}

func (idx *runIndex) get(runID string) (*agent.RunContext, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	rc, ok := idx.runs[runID]
	return rc, ok
}

func (idx *runIndex) len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.runs)
}
