package credstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation, used in tests and when
// the agent runs without a credential file.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string

	// failPuts forces Put to fail; tests use it to exercise the
	// purge-on-partial-write path.
	failPuts bool
	failErr  error
}

// NewMemoryStore returns an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

// Get returns the value for key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

// Put stores value under key.
func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPuts {
		return s.failErr
	}
	s.m[key] = value
	return nil
}

// Delete removes the given keys.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// FailPuts makes subsequent Put calls return err. Deletes still succeed,
// mirroring a storage layer that is full but still clearable.
func (s *MemoryStore) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPuts = err != nil
	s.failErr = err
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
