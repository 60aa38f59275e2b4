package relation

import (
	"context"
	"strings"
	"sync"
	"time"
)

// OptionCache stores resolved options per cache key so later resolutions of
// the same relation skip the backend.
type OptionCache interface {
	Get(ctx context.Context, key string) (Resolution, bool)
	Set(ctx context.Context, key string, res Resolution)
	// Purge drops every entry. Called after the endpoint catalog changes.
	Purge(ctx context.Context)
}

// MemoryOptionCache is an in-process OptionCache with a TTL and a soft
// capacity bound.
type MemoryOptionCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	res       Resolution
	expiresAt time.Time
}

// NewMemoryOptionCache creates a cache. Non-positive arguments fall back to
// five minutes and 1000 entries.
func NewMemoryOptionCache(ttl time.Duration, maxEntries int) *MemoryOptionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryOptionCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns the entry if present and unexpired.
func (c *MemoryOptionCache) Get(_ context.Context, key string) (Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return Resolution{}, false
	}
	return entry.res, true
}

// Set stores an entry. At capacity, expired entries are evicted first; if
// none expired, the entry closest to expiry is dropped.
func (c *MemoryOptionCache) Set(_ context.Context, key string, res Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict()
	}
	c.entries[key] = cacheEntry{res: res, expiresAt: c.now().Add(c.ttl)}
}

// evict must be called with mu held.
func (c *MemoryOptionCache) evict() {
	now := c.now()
	var oldestKey string
	var oldest time.Time
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || v.expiresAt.Before(oldest) {
			oldestKey, oldest = k, v.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Purge drops every entry.
func (c *MemoryOptionCache) Purge(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Invalidate drops entries whose key starts with prefix.
func (c *MemoryOptionCache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryOptionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
