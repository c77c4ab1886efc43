package memory

import (
	"context"
	"sync"

	"scorm-quiz-service/internal/domain"
)

// StateStore keeps attempt slots in process memory. Slots are lost on restart.
type StateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewStateStore() *StateStore {
	return &StateStore{data: make(map[string][]byte)}
}

func (s *StateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *StateStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}

func (s *StateStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}
