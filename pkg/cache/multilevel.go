package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

// DefaultLocalSize bounds the in-process layer when no size is configured
const DefaultLocalSize = 512

type localEntry struct {
	data    []byte
	expires time.Time
}

// MultiLevelCache keeps a bounded in-process LRU in front of a shared cache.
// Local entries live at most localTTL so other instances' invalidations are
// picked up within that window.
type MultiLevelCache struct {
	local    *lru.Cache[string, localEntry]
	remote   Cache
	localTTL time.Duration
	metrics  observability.MetricsClient
	now      func() time.Time
}

// NewMultiLevelCache creates a MultiLevelCache over remote
func NewMultiLevelCache(remote Cache, size int, localTTL time.Duration, metrics observability.MetricsClient) (*MultiLevelCache, error) {
	if size <= 0 {
		size = DefaultLocalSize
	}
	if localTTL <= 0 {
		localTTL = 30 * time.Second
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	local, err := lru.New[string, localEntry](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create local cache")
	}
	return &MultiLevelCache{
		local:    local,
		remote:   remote,
		localTTL: localTTL,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Get checks the local layer first and fills it from the remote on a hit
func (c *MultiLevelCache) Get(ctx context.Context, key string, value interface{}) error {
	start := c.now()
	if e, ok := c.local.Get(key); ok {
		if c.now().Before(e.expires) {
			c.metrics.RecordCacheOperation("get_local", true, c.now().Sub(start).Seconds())
			return unmarshal(e.data, value)
		}
		c.local.Remove(key)
	}

	var raw rawValue
	err := c.remote.Get(ctx, key, &raw)
	c.metrics.RecordCacheOperation("get_remote", err == nil, c.now().Sub(start).Seconds())
	if err != nil {
		return err
	}

	c.local.Add(key, localEntry{data: raw, expires: c.now().Add(c.localTTL)})
	return unmarshal(raw, value)
}

// Set writes through both layers
func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := marshal(value)
	if err != nil {
		return err
	}
	if err := c.remote.Set(ctx, key, rawValue(data), ttl); err != nil {
		c.local.Remove(key)
		return err
	}

	localTTL := c.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	c.local.Add(key, localEntry{data: data, expires: c.now().Add(localTTL)})
	return nil
}

// Delete removes keys from both layers
func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		c.local.Remove(k)
	}
	return c.remote.Delete(ctx, keys...)
}

// Exists reports whether key is held by either layer
func (c *MultiLevelCache) Exists(ctx context.Context, key string) (bool, error) {
	if e, ok := c.local.Peek(key); ok && c.now().Before(e.expires) {
		return true, nil
	}
	return c.remote.Exists(ctx, key)
}

// Flush clears both layers
func (c *MultiLevelCache) Flush(ctx context.Context) error {
	c.local.Purge()
	return c.remote.Flush(ctx)
}

// Close closes the remote layer
func (c *MultiLevelCache) Close() error {
	c.local.Purge()
	return c.remote.Close()
}

// LocalLen returns the number of entries in the local layer
func (c *MultiLevelCache) LocalLen() int {
	return c.local.Len()
}

// rawValue passes already encoded JSON through the remote layer untouched
type rawValue []byte

func (r rawValue) MarshalJSON() ([]byte, error) {
	return r, nil
}

func (r *rawValue) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}
