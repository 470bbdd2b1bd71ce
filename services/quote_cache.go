package services

import (
	"sync"
	"time"

	"stockverse/models"
)

// DefaultQuoteCacheTTL is how long a fetched quote is served without a network call
const DefaultQuoteCacheTTL = 30 * time.Second

type cacheEntry struct {
	quote     models.Quote
	fetchedAt time.Time
}

// QuoteCache holds the last successfully fetched quote per symbol.
// Stale entries are bypassed by Get and overwritten by the next Set; they are never evicted.
type QuoteCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewQuoteCache creates a QuoteCache with the specified TTL.
// A TTL of 0 disables caching.
func NewQuoteCache(ttl time.Duration) *QuoteCache {
	return &QuoteCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached quote for symbol while it is younger than the TTL
func (c *QuoteCache) Get(symbol string) (models.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok || c.now().Sub(entry.fetchedAt) >= c.ttl {
		return models.Quote{}, false
	}
	return entry.quote, true
}

// Set stores quote as the latest entry for symbol
func (c *QuoteCache) Set(symbol string, quote models.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cacheEntry{quote: quote, fetchedAt: c.now()}
}

// Clear drops every entry, forcing the next lookup for each symbol to miss.
func (c *QuoteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of entries, stale ones included
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the cache's time-to-live duration.
func (c *QuoteCache) TTL() time.Duration {
	return c.ttl
}
