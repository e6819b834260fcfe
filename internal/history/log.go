// Package history provides the append-only per-lock access history.
package history

import (
	"sync"

	"github.com/lock-access-monitor/backend/internal/storage/models"
)

// Log is an append-only, per-lock ordered sequence of history entries.
type Log interface {
	// Append records an entry. It never fails.
	Append(entry models.HistoryEntry)

	// For returns the entries of one lock in insertion order. The returned
	// slice is a copy and may be retained by the caller.
	For(lockID string) []models.HistoryEntry
}

// MemoryLog is a Log held in process memory.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[string][]models.HistoryEntry
}

// NewMemoryLog creates an empty in-memory history log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: make(map[string][]models.HistoryEntry),
	}
}

// Append adds an entry to the end of its lock's history.
func (l *MemoryLog) Append(entry models.HistoryEntry) {
	if entry.Confidence != nil {
		c := *entry.Confidence
		entry.Confidence = &c
	}

	l.mu.Lock()
	l.entries[entry.LockID] = append(l.entries[entry.LockID], entry)
	l.mu.Unlock()
}

// For returns a snapshot of the history for lockID.
func (l *MemoryLog) For(lockID string) []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.entries[lockID]
	out := make([]models.HistoryEntry, len(src))
	for i, e := range src {
		if e.Confidence != nil {
			c := *e.Confidence
			e.Confidence = &c
		}
		out[i] = e
	}
	return out
}

// Len returns the number of entries recorded for lockID.
func (l *MemoryLog) Len(lockID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[lockID])
}
