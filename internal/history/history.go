// Package history keeps recent observation summaries in memory so the HTTP
// endpoint can serve more than just the latest cycle.
package history

import (
	"sync"

	models "github.com/ovoronin/pgobserve/internal/model"
)

// DefaultLimit bounds the history when the caller does not.
const DefaultLimit = 10

// Log is a bounded, thread-safe log of observation summaries. The collection
// loop appends; request handlers read.
type Log struct {
	mu        sync.RWMutex
	limit     int
	summaries []*models.Summary
}

// NewLog creates a history log keeping at most limit summaries. Non-positive
// limits fall back to DefaultLimit.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{limit: limit}
}

// Add appends a summary, evicting the oldest entry once the limit is
// reached.
func (l *Log) Add(s *models.Summary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.summaries = append(l.summaries, s)
	if len(l.summaries) > l.limit {
		l.summaries = l.summaries[len(l.summaries)-l.limit:]
	}
}

// Latest returns the most recent summary, or nil before the first cycle
// completes.
func (l *Log) Latest() *models.Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.summaries) == 0 {
		return nil
	}
	return l.summaries[len(l.summaries)-1]
}

// List returns the stored summaries newest first.
func (l *Log) List() []*models.Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*models.Summary, len(l.summaries))
	for i, s := range l.summaries {
		out[len(l.summaries)-1-i] = s
	}
	return out
}

// Len returns the number of stored summaries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.summaries)
}
