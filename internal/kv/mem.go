package kv

import "sync"

// MemStore is a map-backed Store for tests and ephemeral sessions. SetHook, if
// non-nil, runs before each write and may return an error to inject failures
// (quota simulation).
type MemStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	SetHook func(key string, value []byte) error
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetHook != nil {
		if err := s.SetHook(key, value); err != nil {
			return err
		}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemStore) Close() error { return nil }
