package scanner

import (
	"sync"
	"time"
)

// cacheEntry holds fetched call data for one transaction.
type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e *cacheEntry) expired() bool {
	return time.Now().After(e.expiresAt)
}

// callDataCache is a thread-safe TTL cache of transaction inputs keyed by
// transaction hash. Mined inputs never change, so the TTL only bounds memory.
type callDataCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newCallDataCache(ttl time.Duration) *callDataCache {
	return &callDataCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// get looks up cached call data by transaction hash.
func (c *callDataCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired() {
		return nil, false
	}
	return e.data, true
}

// set stores call data. Empty inputs are cached too; they are valid answers.
func (c *callDataCache) set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// evict removes all expired entries.
func (c *callDataCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if e.expired() {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// len returns the number of cached entries (including expired).
func (c *callDataCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
