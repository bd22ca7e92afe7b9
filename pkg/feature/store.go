package feature

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store persists flag toggles
type Store interface {
	Load(ctx context.Context) (map[string]bool, error)
	Save(ctx context.Context, name string, enabled bool) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps toggles in process memory
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]bool)}
}

// Load implements Store
func (s *MemoryStore) Load(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]bool, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, nil
}

// Save implements Store
func (s *MemoryStore) Save(ctx context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = enabled
	return nil
}

// Clear implements Store
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]bool)
	return nil
}

// DefaultRedisKey is the hash holding persisted toggles
const DefaultRedisKey = "kankotri:features"

// RedisStore persists toggles in a Redis hash
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a RedisStore; an empty key uses DefaultRedisKey
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements Store
func (s *RedisStore) Load(ctx context.Context) (map[string]bool, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read feature hash")
	}

	out := make(map[string]bool, len(raw))
	for k, v := range raw {
		out[k] = v == "1"
	}
	return out, nil
}

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, name string, enabled bool) error {
	value := "0"
	if enabled {
		value = "1"
	}
	if err := s.client.HSet(ctx, s.key, name, value).Err(); err != nil {
		return errors.Wrap(err, "failed to write feature hash")
	}
	return nil
}

// Clear implements Store
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete feature hash")
	}
	return nil
}
