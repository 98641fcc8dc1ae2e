package usage

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLog returns an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Metadata = maps.Clone(e.Metadata)
	l.entries = append(l.entries, e)
	return nil
}

func (l *MemoryLog) Count(_ context.Context, identityID uuid.UUID, action string, since time.Time) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var n int64
	for _, e := range l.entries {
		if e.IdentityID == identityID && e.Action == action && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Entries returns a copy of every logged entry.
func (l *MemoryLog) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
