package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapColdStorage холодное хранилище в памяти для тестов
type mapColdStorage struct {
	mu    sync.Mutex
	data  map[string][]byte
	loads int
}

func newMapColdStorage() *mapColdStorage {
	return &mapColdStorage{data: make(map[string][]byte)}
}

func (s *mapColdStorage) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	return v, nil
}

func (s *mapColdStorage) Store(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
	return nil
}

func (s *mapColdStorage) BatchStore(ctx context.Context, items map[string][]byte) error {
	for k, v := range items {
		_ = s.Store(ctx, k, v)
	}
	return nil
}

func (s *mapColdStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *mapColdStorage) Close() error { return nil }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(MemoryOptions{}, nil, nil)

	require.NoError(t, c.Set(ctx, "a", []byte{1, 2, 3}, 0))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	got[0] = 9
	again, _ := c.Get(ctx, "a")
	assert.Equal(t, byte(1), again[0], "Get возвращает копию")

	_, err = c.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err))

	m := c.GetMetrics()
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(2), m.CacheHits)
	assert.Equal(t, int64(1), m.CacheMisses)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := NewMemoryCache(MemoryOptions{TTL: time.Minute, Now: clock.Now}, nil, nil)

	require.NoError(t, c.Set(ctx, "a", []byte{1}, 0))
	clock.Advance(59 * time.Second)
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrCacheMiss), "запись истекла")

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	cold := newMapColdStorage()
	require.NoError(t, cold.Store(ctx, "chunk:0:0:0", []byte{7}))
	c := NewMemoryCache(MemoryOptions{}, cold, nil)

	got, err := c.Get(ctx, "chunk:0:0:0")
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, got)

	_, err = c.Get(ctx, "chunk:0:0:0")
	require.NoError(t, err)
	assert.Equal(t, 1, cold.loads, "второе чтение из памяти")
	assert.Equal(t, int64(1), c.GetMetrics().ColdLoads)

	_, err = c.Get(ctx, "chunk:1:0:0")
	assert.True(t, IsCacheMiss(err))
}

func TestInvalidationAcrossNodes(t *testing.T) {
	ctx := context.Background()
	hub := NewInvalidationHub()
	cold := newMapColdStorage()

	a := NewMemoryCache(MemoryOptions{}, cold, hub.Join("a"))
	b := NewMemoryCache(MemoryOptions{}, cold, hub.Join("b"))
	require.NoError(t, a.ListenInvalidations(ctx))
	require.NoError(t, b.ListenInvalidations(ctx))

	require.NoError(t, cold.Store(ctx, "k", []byte{1}))
	_, err := b.Get(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, cold.Store(ctx, "k", []byte{2}))
	require.NoError(t, a.Invalidate(ctx, "k"))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got, "узел b перечитал холодное хранилище")
}

func TestInvalidatorSkipsOwnNode(t *testing.T) {
	ctx := context.Background()
	hub := NewInvalidationHub()
	a := hub.Join("a")
	b := hub.Join("a")

	var got []string
	require.NoError(t, b.SubscribeInvalidations(ctx, func(key string) error {
		got = append(got, key)
		return nil
	}))
	require.NoError(t, a.PublishInvalidation(ctx, "k"))
	assert.Empty(t, got, "уведомления своего узла игнорируются")

	assert.Error(t, b.SubscribeInvalidations(ctx, func(string) error { return nil }))

	require.NoError(t, b.Close())
	c := hub.Join("c")
	require.NoError(t, c.PublishInvalidation(ctx, "k"))
	assert.Empty(t, got, "закрытый invalidator не получает уведомлений")
}

func TestRedisOptionsFromURL(t *testing.T) {
	opts, err := RedisOptionsFromURL("localhost:6379", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Minute, opts.TTL)

	opts, err = RedisOptionsFromURL("redis://:secret@cache:6380/3", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)

	_, err = RedisOptionsFromURL("", 0, 0)
	assert.Error(t, err)
}
