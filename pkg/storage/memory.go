package storage

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Object is an asset held by MemoryStore
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps assets in memory. Used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

// NewMemoryStore creates a MemoryStore whose URLs start with baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "/assets"
	}
	return &MemoryStore{objects: make(map[string]Object), baseURL: baseURL}
}

// Put stores body under key
func (m *MemoryStore) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if !IsAllowedType(contentType) {
		return "", errors.Wrapf(ErrUnsupportedType, "%q", contentType)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read upload")
	}

	m.mu.Lock()
	m.objects[key] = Object{ContentType: normalizeType(contentType), Data: data}
	m.mu.Unlock()
	return m.URL(key), nil
}

// Get returns the object stored at key
func (m *MemoryStore) Get(key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

// Delete removes key; missing keys are not an error
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// URL returns the URL under which key is served
func (m *MemoryStore) URL(key string) string {
	return joinURL(m.baseURL, key)
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
