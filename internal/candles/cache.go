package candles

import (
	"container/list"
	"fmt"
	"sync"

	"caller-alert-lab/internal/domain"
)

// cacheKey is the full request tuple. There is no fuzzy matching: a
// range one candle wider is a different key. The mint keeps its exact
// case.
func cacheKey(mint string, chain domain.Chain, intervalSeconds, from, to int64) string {
	return fmt.Sprintf("%s|%s|%d|%d|%d", chain, mint, intervalSeconds, from, to)
}

// lruCache is a mutex-guarded LRU of complete range results. Only
// gap-free results are cached; partial results always re-resolve.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type lruEntry struct {
	key     string
	candles domain.CandleSlice
}

func newLRUCache(capacity int) *lruCache {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *lruCache) get(key string) (domain.CandleSlice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)

	cached := el.Value.(*lruEntry).candles
	out := make(domain.CandleSlice, len(cached))
	for i, candle := range cached {
		cp := *candle
		out[i] = &cp
	}
	return out, true
}

func (c *lruCache) put(key string, candles domain.CandleSlice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make(domain.CandleSlice, len(candles))
	for i, candle := range candles {
		v := *candle
		cp[i] = &v
	}

	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEntry).candles = cp
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&lruEntry{key: key, candles: cp})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).key)
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
