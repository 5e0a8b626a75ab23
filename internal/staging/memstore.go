package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"
)

// MemStore keeps staged resources in memory. It backs in-process
// transformers and tests; command transformers need a DirStore.
type MemStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string][]byte)}
}

func (s *MemStore) Allocate(key string) Resource {
	return Resource{Key: key}
}

func (s *MemStore) Put(ctx context.Context, key string, body io.Reader) (Resource, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return Resource{}, fmt.Errorf("write %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return Resource{}, fmt.Errorf("create %s: %w", key, fs.ErrExist)
	}
	s.entries[key] = data
	return Resource{Key: key, Size: int64(len(data))}, nil
}

func (s *MemStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Stat(ctx context.Context, key string) (Resource, error) {
	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Resource{}, fmt.Errorf("stat %s: %w", key, fs.ErrNotExist)
	}
	return Resource{Key: key, Size: int64(len(data))}, nil
}

func (s *MemStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len reports how many entries are staged. Tests use it to prove jobs
// clean up after themselves.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
