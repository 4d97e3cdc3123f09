package memory

import (
	"context"
	"sync"

	"quiz-session-engine/internal/domain"
)

// LocalStore is an in-memory implementation of app.LocalStore. Values live as long as the
// process.
type LocalStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		values: make(map[string]string),
	}
}

func (s *LocalStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return value, nil
}

func (s *LocalStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len reports how many keys are stored.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
