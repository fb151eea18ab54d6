package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/apascualco/trafficcop/internal/domain"
)

// StateStore keeps the latest payload per target domain and key.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]map[string]any
}

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]map[string]any)}
}

func (s *StateStore) SyncState(_ context.Context, req domain.SyncRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[req.TargetDomain+":"+req.Key] = maps.Clone(req.Payload)
	return true, nil
}

func (s *StateStore) State(targetDomain, key string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.states[targetDomain+":"+key]
	return maps.Clone(payload), ok
}
