package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryExactCache is an in-process ExactCache with per-entry TTL and a
// background sweeper.
type MemoryExactCache struct {
	mu    sync.RWMutex
	items map[string]memoryEntry

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryExactCache starts a cache whose sweeper runs every sweepEvery
// (5 minutes when sweepEvery <= 0). Call Close to stop the sweeper.
func NewMemoryExactCache(sweepEvery time.Duration) *MemoryExactCache {
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}

	c := &MemoryExactCache{
		items:      make(map[string]memoryEntry),
		sweepEvery: sweepEvery,
		stop:       make(chan struct{}),
	}
	go c.sweep()

	return c
}

func (c *MemoryExactCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if entry.expired(now) {
		c.mu.Lock()
		// re-check, a concurrent Set may have refreshed it
		if e, exists := c.items[key]; exists && e.expired(now) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores a copy of value. A ttl <= 0 removes the key instead.
func (c *MemoryExactCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return nil
	}

	c.items[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *MemoryExactCache) sweep() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.items {
				if e.expired(now) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *MemoryExactCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *MemoryExactCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
