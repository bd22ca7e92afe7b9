package feature

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	flags := New(nil, nil, nil)

	assert.False(t, flags.IsEnabled(AIGeneration))
	assert.True(t, flags.IsEnabled(Analytics))
	assert.True(t, flags.IsEnabled(SocialShare))
	assert.True(t, flags.IsEnabled(AutoSave))
	assert.False(t, flags.IsEnabled(RichText))
	assert.False(t, flags.IsEnabled("does_not_exist"))
	assert.Equal(t, []string{AIGeneration, Analytics, AutoSave, RichText, SocialShare}, flags.Names())
}

func TestNew_OverridePrecedence(t *testing.T) {
	t.Setenv("FEATURE_AI_GENERATION", "yes")
	t.Setenv("FEATURE_ANALYTICS", "false")
	t.Setenv("FEATURE_UNKNOWN", "true")

	flags := New(nil, map[string]bool{"rich-text": true, "analytics": true}, nil)

	assert.True(t, flags.IsEnabled(AIGeneration))
	assert.False(t, flags.IsEnabled(Analytics), "environment wins over config")
	assert.True(t, flags.IsEnabled(RichText))
	_, known := flags.All()["unknown"]
	assert.False(t, known)
}

func TestSet_PersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	flags := New(store, nil, nil)

	var changes []string
	flags.OnChange(func(ctx context.Context, name string, enabled bool) {
		changes = append(changes, name)
	})

	require.NoError(t, flags.Set(ctx, "AI_GENERATION", true))
	require.NoError(t, flags.Set(ctx, Analytics, true))

	assert.True(t, flags.IsEnabled(AIGeneration))
	assert.Equal(t, []string{AIGeneration}, changes, "unchanged values do not notify")

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, persisted[AIGeneration])

	reloaded := New(store, nil, nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.IsEnabled(AIGeneration))
}

func TestSet_UnknownFlag(t *testing.T) {
	err := New(nil, nil, nil).Set(context.Background(), "dark_mode", true)
	assert.True(t, errors.Is(err, ErrUnknownFlag))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	flags := New(nil, nil, nil)
	require.NoError(t, flags.Set(ctx, RichText, true))

	var notified []bool
	flags.OnChange(func(ctx context.Context, name string, enabled bool) {
		notified = append(notified, enabled)
	})

	require.NoError(t, flags.Reset(ctx))
	assert.False(t, flags.IsEnabled(RichText))
	assert.Equal(t, []bool{false}, notified)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client, "")
	flags := New(store, nil, nil)

	require.NoError(t, flags.Set(ctx, SocialShare, false))
	assert.Equal(t, "0", mr.HGet(DefaultRedisKey, SocialShare))

	mr.HSet(DefaultRedisKey, AIGeneration, "1")
	mr.HSet(DefaultRedisKey, "legacy_flag", "1")

	fresh := New(store, nil, nil)
	require.NoError(t, fresh.Load(ctx))
	assert.False(t, fresh.IsEnabled(SocialShare))
	assert.True(t, fresh.IsEnabled(AIGeneration))

	require.NoError(t, fresh.Reset(ctx))
	assert.False(t, mr.Exists(DefaultRedisKey))
	assert.True(t, fresh.IsEnabled(SocialShare))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	flags := New(NewRedisStore(client, ""), nil, nil)
	assert.Error(t, flags.Load(context.Background()))
	assert.Error(t, flags.Set(context.Background(), Analytics, false))
	assert.True(t, flags.IsEnabled(Analytics), "failed writes do not change state")
}

func TestSet_GuardRejects(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	flags := New(store, nil, nil)

	blocked := errors.New("blocked")
	var seen []bool
	flags.Guard(func(ctx context.Context, name string, enabled bool) error {
		seen = append(seen, enabled)
		if name == RichText {
			return blocked
		}
		return nil
	})
	var notified int
	flags.OnChange(func(ctx context.Context, name string, enabled bool) { notified++ })

	err := flags.Set(ctx, RichText, true)
	assert.ErrorIs(t, err, blocked)
	assert.False(t, flags.IsEnabled(RichText))
	assert.Zero(t, notified)
	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted)

	require.NoError(t, flags.Set(ctx, AIGeneration, true))
	require.NoError(t, flags.Set(ctx, AIGeneration, true))
	assert.Equal(t, []bool{true, true}, seen, "guards only see effective toggles")
	assert.Equal(t, 1, notified)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Save(context.Context, string, bool) error { return errors.New("store down") }

func TestSet_PersistFailureRevertsGuards(t *testing.T) {
	flags := New(failingStore{NewMemoryStore()}, nil, nil)

	var applied []bool
	flags.Guard(func(ctx context.Context, name string, enabled bool) error {
		applied = append(applied, enabled)
		return nil
	})

	assert.Error(t, flags.Set(context.Background(), AIGeneration, true))
	assert.False(t, flags.IsEnabled(AIGeneration))
	assert.Equal(t, []bool{true, false}, applied)
}

func TestSet_ConcurrentTogglesStayOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	flags := New(store, nil, nil)

	var mu sync.Mutex
	var notified []bool
	flags.OnChange(func(ctx context.Context, name string, enabled bool) {
		mu.Lock()
		notified = append(notified, enabled)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			assert.NoError(t, flags.Set(ctx, AIGeneration, on))
		}(i%2 == 0)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	prev := false
	for i, v := range notified {
		require.NotEqual(t, prev, v, "notification %d repeats the previous value", i)
		prev = v
	}
	assert.Equal(t, prev, flags.IsEnabled(AIGeneration))
	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, prev, persisted[AIGeneration])
}
