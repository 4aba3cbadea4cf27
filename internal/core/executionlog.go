package core

import (
	"sync"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// DefaultExecutionLogSize is the number of entries the dispatcher keeps.
const DefaultExecutionLogSize = 1000

// ExecutionLog is a fixed-capacity ring of execution entries. Once full, each
// append drops the oldest entry.
type ExecutionLog struct {
	mu      sync.Mutex
	entries []models.ExecutionLogEntry
	start   int
	size    int
}

// NewExecutionLog creates a log holding at most capacity entries. A
// non-positive capacity selects DefaultExecutionLogSize.
func NewExecutionLog(capacity int) *ExecutionLog {
	if capacity <= 0 {
		capacity = DefaultExecutionLogSize
	}
	return &ExecutionLog{entries: make([]models.ExecutionLogEntry, capacity)}
}

// Append adds an entry.
func (l *ExecutionLog) Append(e models.ExecutionLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	capacity := len(l.entries)
	if l.size < capacity {
		l.entries[(l.start+l.size)%capacity] = e
		l.size++
		return
	}
	l.entries[l.start] = e
	l.start = (l.start + 1) % capacity
}

// Len returns the number of entries held.
func (l *ExecutionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Cap returns the maximum number of entries held.
func (l *ExecutionLog) Cap() int {
	return len(l.entries)
}

// Entries returns the held entries, oldest first.
func (l *ExecutionLog) Entries() []models.ExecutionLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.ExecutionLogEntry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.start+i)%len(l.entries)]
	}
	return out
}
