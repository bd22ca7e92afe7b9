package cache

import (
	"context"
	"time"
)

// NoOpCache is a cache implementation that does nothing
// Used for graceful degradation when cache is unavailable
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache
func NewNoOpCache() Cache {
	return &NoOpCache{}
}

// Get always returns cache miss
func (n *NoOpCache) Get(ctx context.Context, key string, value interface{}) error {
	return ErrNotFound
}

func (n *NoOpCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (n *NoOpCache) Delete(ctx context.Context, keys ...string) error {
	return nil
}

func (n *NoOpCache) Exists(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (n *NoOpCache) Flush(ctx context.Context) error {
	return nil
}

func (n *NoOpCache) Close() error {
	return nil
}
