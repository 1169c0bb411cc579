package audit

import (
	"sync"

	"github.com/guestledger/dupguard/internal/types"
)

// retryQueue parks decision log entries whose synchronous writes failed.
// Entries never leave the queue except through a successful insert; a
// stalled drain puts them back in order.
type retryQueue struct {
	mu      sync.Mutex
	entries []types.DecisionLogEntry
}

func (q *retryQueue) push(entry types.DecisionLogEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
}

func (q *retryQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// takeAll removes and returns every queued entry, oldest first
func (q *retryQueue) takeAll() []types.DecisionLogEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := q.entries
	q.entries = nil
	return entries
}

// requeueFront puts undrained entries back ahead of anything pushed since
// takeAll, preserving first-in first-out order.
func (q *retryQueue) requeueFront(entries []types.DecisionLogEntry) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(entries, q.entries...)
}
