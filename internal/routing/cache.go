package routing

import (
	"sync"
	"time"

	"github.com/example/ride-booking/internal/models"
)

// cache is a tiny in-memory cache for computed routes keyed by the
// normalized request. A recompute with an identical request within the
// TTL returns the exact same totals.
type cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	q  models.RouteQuote
	ts time.Time
}

func newCache(ttl time.Duration) *cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func (c *cache) get(key string) (models.RouteQuote, bool) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return models.RouteQuote{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return models.RouteQuote{}, false
	}
	return e.q, true
}

func (c *cache) set(key string, q models.RouteQuote) {
	c.mu.Lock()
	c.store[key] = cacheEntry{q: q, ts: time.Now()}
	c.mu.Unlock()
}
