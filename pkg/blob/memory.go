package blob

import (
	"context"
	"sync"

	apperrors "github.com/complianceai/platform/infrastructure/errors"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	mimes   map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		mimes:   make(map[string]string),
	}
}

// Fetch returns a stored object.
func (s *MemoryStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[sanitizeKey(key)]
	if !ok {
		return nil, apperrors.StoreNotFound(key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put stores an object.
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := sanitizeKey(key)
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[k] = stored
	s.mimes[k] = mimeType
	return nil
}
