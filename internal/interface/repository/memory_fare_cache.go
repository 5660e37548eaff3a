package repository

import (
	"context"
	"sync"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
)

type cachedFare struct {
	quote     entity.FareQuote
	expiresAt time.Time
}

// MemoryFareCache is an in-process FareCache. Entries expire lazily on read.
type MemoryFareCache struct {
	mu      sync.RWMutex
	entries map[string]cachedFare
	now     func() time.Time
}

// NewMemoryFareCache creates an empty cache
func NewMemoryFareCache() *MemoryFareCache {
	return &MemoryFareCache{
		entries: make(map[string]cachedFare),
		now:     time.Now,
	}
}

var _ repository.FareCache = (*MemoryFareCache)(nil)

// SetClock replaces the time source used for expiry
func (c *MemoryFareCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the cached quote or nil when absent or expired
func (c *MemoryFareCache) Get(ctx context.Context, key string) (*entity.FareQuote, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && !now.Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, nil
	}

	quote := entry.quote
	return &quote, nil
}

// Put stores quote under key until ttl elapses, overwriting any previous value
func (c *MemoryFareCache) Put(ctx context.Context, key string, quote entity.FareQuote, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cachedFare{quote: quote, expiresAt: c.now().Add(ttl)}
	return nil
}

// Len is the number of stored entries, expired ones included
func (c *MemoryFareCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
