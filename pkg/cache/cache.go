// Package cache provides the read-through caches used by the template service.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned on a cache miss
var ErrNotFound = errors.New("cache: key not found")

// Cache interface defines the operations for a caching system
type Cache interface {
	// Get decodes the value stored at key into value
	Get(ctx context.Context, key string, value interface{}) error
	// Set stores value at key for ttl; a zero ttl never expires
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Flush removes every key owned by this cache
	Flush(ctx context.Context) error
	Close() error
}

func marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal cache value")
	}
	return data, nil
}

func unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal cache value")
	}
	return nil
}
