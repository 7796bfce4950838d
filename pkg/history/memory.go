package history

import (
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/handwrite/pkg/errors"
)

// MemoryStore keeps the most recent entries in memory. Once full, recording
// a new entry drops the oldest.
type MemoryStore struct {
	mu      sync.RWMutex
	size    int
	entries []Entry // oldest first
}

// NewMemoryStore creates a store holding at most size entries.
func NewMemoryStore(size int) *MemoryStore {
	return &MemoryStore{size: max(1, size)}
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.entries, func(x Entry) bool { return x.ID == e.ID }); i >= 0 {
		s.entries = slices.Delete(s.entries, i, i+1)
	}
	if len(s.entries) >= s.size {
		s.entries = slices.Delete(s.entries, 0, len(s.entries)-s.size+1)
	}
	s.entries = append(s.entries, e)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, errors.New(errors.ErrCodeNotFound, "generation '%s' not found", id)
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(clampLimit(limit), len(s.entries))
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close(context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
