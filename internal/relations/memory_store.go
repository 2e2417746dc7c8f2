package relations

import (
	"context"
	"sync"

	"github.com/vidtube/backend/internal/models"
)

// MemoryStore is a Store held in process memory. The mutex stands in for the unique
// constraint that serialises writers in the SQL store.
type MemoryStore struct {
	mu    sync.Mutex
	facts map[models.RelationKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{facts: make(map[models.RelationKey]struct{})}
}

func (s *MemoryStore) AtomicToggle(_ context.Context, key models.RelationKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.facts[key]; ok {
		delete(s.facts, key)
		return false, nil
	}
	s.facts[key] = struct{}{}
	return true, nil
}

func (s *MemoryStore) CountLive(_ context.Context, targetID string, kind models.RelationKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.facts {
		if key.TargetID == targetID && key.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Exists(_ context.Context, key models.RelationKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.facts[key]
	return ok, nil
}

// Len reports the number of stored facts.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.facts)
}
