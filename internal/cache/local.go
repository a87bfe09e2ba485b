package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultLocalTTL applies when Set is called without a ttl.
const DefaultLocalTTL = 5 * time.Minute

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// LocalCache implements Cache in process memory.
// This is suitable for single-instance deployments.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewLocalCache creates an in-memory cache. A zero ttl uses DefaultLocalTTL.
func NewLocalCache(ttl time.Duration) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultLocalTTL
	}
	return &LocalCache{
		entries: make(map[string]localEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the stored value.
func (c *LocalCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value.
func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close drops all entries.
func (c *LocalCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]localEntry)
	return nil
}
