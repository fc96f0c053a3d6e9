package memory

import (
	"context"
	"sync"

	"kycvault/internal/scan"
	"kycvault/pkg/domain"
)

// InMemoryStore keeps scan attempts for tests and single-process runs.
type InMemoryStore struct {
	mu         sync.RWMutex
	byDocument map[domain.DocumentID][]*scan.Consensus
}

func New() *InMemoryStore {
	return &InMemoryStore{byDocument: make(map[domain.DocumentID][]*scan.Consensus)}
}

func (s *InMemoryStore) Save(_ context.Context, c *scan.Consensus) error {
	cp := *c
	cp.Results = append([]scan.Result(nil), c.Results...)
	cp.ThreatNames = append([]string(nil), c.ThreatNames...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDocument[c.DocumentID] = append(s.byDocument[c.DocumentID], &cp)
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID domain.DocumentID) ([]*scan.Consensus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*scan.Consensus(nil), s.byDocument[documentID]...), nil
}

var _ scan.ResultStore = (*InMemoryStore)(nil)
