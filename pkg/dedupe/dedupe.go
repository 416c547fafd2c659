// Package dedupe provides a bounded TTL cache used to drop webhook
// deliveries that have already been admitted.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 1000
)

// Key derives the dedupe key for a delivery from its shop domain, topic
// and raw body. Identical deliveries hash to the same key.
func Key(shopDomain, topic string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(shopDomain))
	h.Write([]byte{'\n'})
	h.Write([]byte(topic))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type Cache struct {
	mu         sync.Mutex
	seen       map[string]time.Time
	ttl        time.Duration
	maxEntries int

	now func() time.Time
}

func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		seen:       make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Seen reports whether the key was remembered within the TTL window.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.seen[key]
	if !ok {
		return false
	}
	if !c.now().Before(exp) {
		delete(c.seen, key)
		return false
	}
	return true
}

// Remember marks the key as seen. When the cache is full it sweeps
// expired entries first; if the sweep frees nothing the oldest entry is
// evicted so the cache stays bounded.
func (c *Cache) Remember(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.seen) >= c.maxEntries {
		c.sweep(now)
	}
	if len(c.seen) >= c.maxEntries {
		c.evictOldest()
	}
	c.seen[key] = now.Add(c.ttl)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) sweep(now time.Time) {
	for k, exp := range c.seen {
		if !now.Before(exp) {
			delete(c.seen, k)
		}
	}
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestExp time.Time
	for k, exp := range c.seen {
		if oldestKey == "" || exp.Before(oldestExp) {
			oldestKey = k
			oldestExp = exp
		}
	}
	if oldestKey != "" {
		delete(c.seen, oldestKey)
	}
}
