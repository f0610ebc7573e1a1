package calls

import (
	"sort"
	"sync"
	"time"
)

// Store holds the most recent StatusRecord per target for the lifetime of one
// monitoring session.
//
// Write semantics: Set is overwrite, last-writer-wins. Both the dispatcher
// (optimistic updates) and the fallback statistics reader touch the store, so
// access is guarded by a mutex. No TTL and no capacity bound; the store grows
// with the number of distinct targets touched and is cleared only when the
// owning session closes.
type Store struct {
	mu      sync.RWMutex
	records map[string]StatusRecord
	clock   func() time.Time
}

func NewStore() *Store {
	return &Store{records: make(map[string]StatusRecord), clock: time.Now}
}

// Set overwrites the record for its TargetID, stamping UpdatedAt when the
// caller left it zero.
func (s *Store) Set(rec StatusRecord) {
	if rec.TargetID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.clock().UTC()
	}
	s.records[rec.TargetID] = rec
}

// SetStatus is a convenience overwrite that keeps any previously known
// details (name, phone, conversation id) for the target.
func (s *Store) SetStatus(targetID string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[targetID]
	rec.TargetID = targetID
	rec.Status = status
	rec.UpdatedAt = s.clock().UTC()
	s.records[targetID] = rec
}

func (s *Store) Get(targetID string) (StatusRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[targetID]
	return rec, ok
}

// Values returns all records sorted by UpdatedAt descending. Sorting happens
// at read time; storage order is unspecified.
func (s *Store) Values() []StatusRecord {
	s.mu.RLock()
	out := make([]StatusRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear drops every record. Called when the owning monitor session closes.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]StatusRecord)
}
