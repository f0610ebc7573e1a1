package activity

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory activity repository for tests and local
// development. Append-only like the real thing.
type MemoryRepo struct {
	mu     sync.Mutex
	Events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

// Snapshot returns a copy of everything appended so far.
func (r *MemoryRepo) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.Events))
	copy(out, r.Events)
	return out
}
