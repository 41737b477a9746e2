package exchange

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type cacheEntry struct {
	rates     map[string]decimal.Decimal
	expiresAt time.Time
}

// Cache is a thread-safe in-memory TTL cache of rate tables keyed by base
// currency. One instance is created at process start and shared by the
// client; it is cleared only by explicit admin action, never implicitly.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached rate table for base, or nil if absent or expired.
// Expired entries are removed on access.
func (c *Cache) Get(base string) map[string]decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[base]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, base)
		return nil
	}
	return entry.rates
}

// Set stores a rate table for base with the cache's TTL.
func (c *Cache) Set(base string, rates map[string]decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[base] = cacheEntry{rates: rates, expiresAt: time.Now().Add(c.ttl)}
}

// Clear drops all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
