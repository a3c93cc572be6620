// Package checkpoint tracks which tracking ids already have a result row.
package checkpoint

import (
	"context"
	"sync"
	"sync/atomic"
)

// Set records completed tracking ids so a resumed run never reprocesses them.
type Set interface {
	// Claim atomically checks if id is present and records it if not.
	// Returns true if id was already present, false if it was newly claimed.
	Claim(ctx context.Context, id string) bool

	// Release removes a claim whose result could not be persisted, so a
	// later run retries the record.
	Release(ctx context.Context, id string)

	Size() int64
}

// inMemorySet implements Set with a map guarded by a mutex.
type inMemorySet struct {
	mu   sync.Mutex
	ids  map[string]struct{}
	size atomic.Int64
}

// NewInMemorySet creates a Set seeded with ids. Empty ids are ignored.
func NewInMemorySet(opts ...Option) Set {
	s := &inMemorySet{ids: make(map[string]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Claim implements Set.
func (s *inMemorySet) Claim(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.addLocked(id)
}

// Release implements Set.
func (s *inMemorySet) Release(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		s.size.Add(-1)
	}
}

// Size returns the number of recorded ids.
func (s *inMemorySet) Size() int64 {
	return s.size.Load()
}

// addLocked records id and reports whether it was new.
// Must be called with s.mu held.
func (s *inMemorySet) addLocked(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.size.Add(1)
	return true
}
