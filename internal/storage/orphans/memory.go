package orphans

import (
	"context"
	"sort"
	"sync"
)

type InMemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]Orphan
}

func NewInMemory() *InMemoryRegistry {
	return &InMemoryRegistry{entries: make(map[string]Orphan)}
}

// Record upserts by path, keeping the first RecordedAt.
func (r *InMemoryRegistry) Record(_ context.Context, orphan Orphan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[orphan.Path]; ok && !existing.RecordedAt.IsZero() {
		orphan.RecordedAt = existing.RecordedAt
	}
	r.entries[orphan.Path] = orphan
	return nil
}

// List returns the oldest entries first.
func (r *InMemoryRegistry) List(_ context.Context, limit int) ([]Orphan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Orphan, 0, len(r.entries))
	for _, o := range r.entries {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRegistry) Remove(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, path)
	return nil
}

var _ Registry = (*InMemoryRegistry)(nil)
