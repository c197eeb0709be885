// Package cache keeps translated entry texts keyed by source text, target
// language and prompt, with an optional durable tier.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/subtitle-batch-translator/pkg/log"
)

// Store is a durable second tier, e.g. the sqlite translation cache table.
type Store interface {
	GetCachedTranslation(ctx context.Context, key string) (string, bool, error)
	PutCachedTranslation(ctx context.Context, key, value string) error
}

// Key derives the cache key of one entry text. promptKey identifies the
// instructions and format mode the text was translated with.
func Key(text, targetLanguage, promptKey string) string {
	h := sha256.New()
	for _, part := range []string{text, targetLanguage, promptKey} {
		// length prefix keeps ("ab","c") and ("a","bc") apart
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type item struct {
	key   string
	value string
}

// Stats are cumulative counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// Cache is a bounded in-memory map with least-recently-used eviction.
// Writes are idempotent, so concurrent workers caching the same entry is
// harmless. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*list.Element
	order   *list.List // front is most recently used

	store Store
	group singleflight.Group

	hits, misses, evictions atomic.Int64
}

// New creates a cache holding at most size entries. store may be nil.
func New(size int, store Store) *Cache {
	if size <= 0 {
		size = 1
	}
	return &Cache{
		max:     size,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		store:   store,
	}
}

// Get looks up key in memory, then in the durable tier. Concurrent misses
// on the same key share one durable lookup.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := c.getMemory(key); ok {
		c.hits.Add(1)
		return v, true
	}
	if c.store == nil {
		c.misses.Add(1)
		return "", false
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, ok, err := c.store.GetCachedTranslation(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
		c.putMemory(key, value)
		return value, nil
	})
	if err != nil {
		log.Warn("Cache store lookup failed: %v", err)
	}
	if s, ok := v.(string); ok {
		c.hits.Add(1)
		return s, true
	}
	c.misses.Add(1)
	return "", false
}

// Put stores value under key in memory and in the durable tier.
func (c *Cache) Put(ctx context.Context, key, value string) {
	c.putMemory(key, value)
	if c.store == nil {
		return
	}
	if err := c.store.PutCachedTranslation(ctx, key, value); err != nil {
		log.Warn("Cache store write failed: %v", err)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
	}
}

func (c *Cache) getMemory(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*item).value, true
}

func (c *Cache) putMemory(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*item).value = value
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.max {
		c.evictLocked()
	}
	c.entries[key] = c.order.PushFront(&item{key: key, value: value})
}

// evictLocked drops the least recently used ~10% of the ceiling.
func (c *Cache) evictLocked() {
	n := max(c.max/10, 1)
	for i := 0; i < n; i++ {
		el := c.order.Back()
		if el == nil {
			return
		}
		c.order.Remove(el)
		delete(c.entries, el.Value.(*item).key)
		c.evictions.Add(1)
	}
}
