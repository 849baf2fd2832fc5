package ai

import (
	"sync"
	"time"

	"log/slog"

	"github.com/polisim/ai-gateway/internal/adapter/observability"
)

// bucketEntry carries access metadata on top of the stored result. Access
// metadata is the only state ever mutated in place.
type bucketEntry struct {
	content      string
	created      time.Time
	lastAccessed time.Time
	accessCount  int
}

// BucketCache is the similarity-bucket response tier. It shares the lookup
// and store contracts of ExactCache but evicts the least recently used entry
// at capacity, falling back to oldest-first when nothing has been touched.
type BucketCache struct {
	mu        sync.Mutex
	entries   map[string]*bucketEntry
	capacity  int
	ttl       time.Duration
	hitCount  int64
	missCount int64
	now       func() time.Time
}

// NewBucketCache creates a bucket cache with the given capacity and TTL.
func NewBucketCache(capacity int, ttl time.Duration) *BucketCache {
	return &BucketCache{
		entries:  make(map[string]*bucketEntry),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lookup returns the cached content for the bucket signature. Expired
// entries are removed lazily.
func (c *BucketCache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.missCount++
		observability.CacheLookupsTotal.WithLabelValues("bucket", "miss").Inc()
		return "", false
	}
	if c.now().Sub(e.created) >= c.ttl {
		delete(c.entries, key)
		c.missCount++
		observability.CacheLookupsTotal.WithLabelValues("bucket", "expired").Inc()
		return "", false
	}
	e.accessCount++
	e.lastAccessed = c.now()
	c.hitCount++
	observability.CacheLookupsTotal.WithLabelValues("bucket", "hit").Inc()
	return e.content, true
}

// Store inserts content under the bucket signature, evicting the least
// recently used entry when at capacity.
func (c *BucketCache) Store(key, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	now := c.now()
	c.entries[key] = &bucketEntry{content: content, created: now, lastAccessed: now}
	observability.CacheEntries.WithLabelValues("bucket").Set(float64(len(c.entries)))
}

// evictLocked removes the entry with the oldest last access, breaking ties
// by creation time.
func (c *BucketCache) evictLocked() {
	var victim string
	var victimAccess, victimCreated time.Time
	for key, e := range c.entries {
		if victim == "" ||
			e.lastAccessed.Before(victimAccess) ||
			(e.lastAccessed.Equal(victimAccess) && e.created.Before(victimCreated)) {
			victim = key
			victimAccess = e.lastAccessed
			victimCreated = e.created
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		slog.Debug("bucket cache evicted LRU entry", slog.String("key", shortKey(victim)))
	}
}

// Sweep removes every expired entry. Called from the facade's Tick.
func (c *BucketCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.now().Sub(e.created) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		observability.CacheEntries.WithLabelValues("bucket").Set(float64(len(c.entries)))
	}
	return removed
}

// Len returns the number of live entries.
func (c *BucketCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Counters returns the raw hit and miss counts.
func (c *BucketCache) Counters() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitCount, c.missCount
}
