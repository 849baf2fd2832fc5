package ai

import (
	"sync"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/observability"
)

// exactEntry is a stored result plus its creation timestamp. Entries are
// never mutated in place.
type exactEntry struct {
	content string
	created time.Time
}

// ExactCache is the exact-content response tier: TTL-bound entries with
// lazy expiry on lookup and oldest-first eviction at capacity. Safe for
// concurrent use.
type ExactCache struct {
	mu        sync.Mutex
	entries   map[string]exactEntry
	order     []string // insertion order; re-stores move the key to the back
	capacity  int
	ttl       time.Duration
	hitCount  int64
	missCount int64
	now       func() time.Time
}

// NewExactCache creates an exact-content cache with the given capacity and TTL.
func NewExactCache(capacity int, ttl time.Duration) *ExactCache {
	return &ExactCache{
		entries:  make(map[string]exactEntry),
		order:    make([]string, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lookup returns the cached content for key. Expired entries are removed
// and reported as misses.
func (c *ExactCache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.missCount++
		observability.CacheLookupsTotal.WithLabelValues("exact", "miss").Inc()
		return "", false
	}
	if c.now().Sub(e.created) >= c.ttl {
		c.removeLocked(key)
		c.missCount++
		observability.CacheLookupsTotal.WithLabelValues("exact", "expired").Inc()
		return "", false
	}
	c.hitCount++
	observability.CacheLookupsTotal.WithLabelValues("exact", "hit").Inc()
	return e.content, true
}

// Store inserts content under key, evicting the single oldest entry when at
// capacity. Storing an existing key refreshes its creation timestamp.
func (c *ExactCache) Store(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrderLocked(key)
	} else if len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.removeLocked(oldest)
		slog.Debug("exact cache evicted oldest entry", slog.String("key", shortKey(oldest)))
	}
	c.entries[key] = exactEntry{content: content, created: c.now()}
	c.order = append(c.order, key)
	observability.CacheEntries.WithLabelValues("exact").Set(float64(len(c.entries)))
}

// Sweep removes every expired entry. Called from the facade's Tick.
func (c *ExactCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.now().Sub(e.created) >= c.ttl {
			c.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		observability.CacheEntries.WithLabelValues("exact").Set(float64(len(c.entries)))
	}
	return removed
}

// Len returns the number of live entries.
func (c *ExactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (c *ExactCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hitCount + c.missCount
	if total == 0 {
		return 0
	}
	return float64(c.hitCount) / float64(total)
}

// Counters returns the raw hit and miss counts.
func (c *ExactCache) Counters() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitCount, c.missCount
}

func (c *ExactCache) removeLocked(key string) {
	delete(c.entries, key)
	c.removeFromOrderLocked(key)
}

func (c *ExactCache) removeFromOrderLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func shortKey(k string) string {
	if len(k) > 16 {
		return k[:16] + "..."
	}
	return k
}
