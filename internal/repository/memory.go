package repository

import (
	"context"
	"sync"

	"nordagri/internal/domain"
)

// MemoryStore is a process-local KeyValueStore. Contents do not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) GetDel(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	delete(s.values, key)
	return val, true, nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, fn domain.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	next, err := fn(append([]byte(nil), val...), ok)
	if err != nil {
		return err
	}
	s.values[key] = append([]byte(nil), next...)
	return nil
}

// Keys returns the stored keys, mainly for tests and diagnostics.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
