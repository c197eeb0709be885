package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	data  map[string]string
	gets  atomic.Int32
	delay time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (s *memStore) GetCachedTranslation(_ context.Context, key string) (string, bool, error) {
	s.gets.Add(1)
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) PutCachedTranslation(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("hello", "de", "p"), Key("hello", "de", "p"))
	assert.NotEqual(t, Key("hello", "de", "p"), Key("hello", "fr", "p"))
	assert.NotEqual(t, Key("ab", "c", ""), Key("a", "bc", ""))
	assert.Len(t, Key("", "", ""), 64)
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	c := New(10, nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Put(ctx, "k", "v")
	c.Put(ctx, "k", "v")
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCache_EvictsOldestTenPercent(t *testing.T) {
	t.Parallel()

	c := New(20, nil)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		c.Put(ctx, fmt.Sprintf("k%d", i), "v")
	}
	// touch k0 so k1 and k2 are the oldest
	_, ok := c.Get(ctx, "k0")
	require.True(t, ok)

	c.Put(ctx, "new", "v")

	assert.Equal(t, 19, c.Len())
	assert.Equal(t, int64(2), c.Stats().Evictions)
	for _, gone := range []string{"k1", "k2"} {
		_, ok := c.Get(ctx, gone)
		assert.False(t, ok, gone)
	}
	for _, kept := range []string{"k0", "k3", "new"} {
		_, ok := c.Get(ctx, kept)
		assert.True(t, ok, kept)
	}
}

func TestCache_StoreTier(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ctx := context.Background()

	New(5, store).Put(ctx, "k", "durable")

	// a fresh cache finds the value through the store and keeps it in memory
	c := New(5, store)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "durable", v)
	_, _ = c.Get(ctx, "k")
	assert.Equal(t, int32(1), store.gets.Load())
}

func TestCache_ConcurrentMissesShareLookup(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.data["k"] = "v"
	store.delay = 50 * time.Millisecond
	c := New(5, store)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok := c.Get(context.Background(), "k")
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		}()
	}
	wg.Wait()

	assert.Less(t, store.gets.Load(), int32(8))
}
