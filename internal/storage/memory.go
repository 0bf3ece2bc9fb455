package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps objects in process. Used for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "http://localhost/uploads"
	}
	return &MemoryStore{objects: map[string]Object{}, baseURL: baseURL}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Put(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrObjectStoreFailed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[obj.Key]; exists {
		return "", fmt.Errorf("%w: %s already exists", ErrObjectStoreFailed, obj.Key)
	}
	content := make([]byte, len(obj.Content))
	copy(content, obj.Content)
	obj.Content = content
	m.objects[obj.Key] = obj
	return publicURL(m.baseURL, obj.Key), nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys, sorted.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
