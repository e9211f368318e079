package device

import (
	"sync"
	"time"
)

// DefaultStatusTTL is the default lifetime of a cached status entry.
const DefaultStatusTTL = 300 * time.Second

// purgeInterval is how often expired entries are swept from the cache.
const purgeInterval = time.Minute

// StatusCache is the fast-path cache of last-known device status.
//
// It is strictly best-effort and never authoritative: every entry is
// reconstructable from the repository, so losing the cache only costs a
// fallback read. Set and Get never fail; the heartbeat path must not be
// degraded by the cache.
//
// All methods are safe for concurrent use.
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

type cacheEntry struct {
	value     CachedStatus
	expiresAt time.Time
}

// NewStatusCache creates a status cache with the given entry TTL.
// A non-positive TTL falls back to DefaultStatusTTL.
func NewStatusCache(ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &StatusCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set stores the last-known status for a device, resetting its TTL.
func (c *StatusCache) Set(deviceID string, value CachedStatus) {
	c.mu.Lock()
	c.entries[deviceID] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Get returns the cached status for a device, if present and unexpired.
func (c *StatusCache) Get(deviceID string) (CachedStatus, bool) {
	c.mu.RLock()
	entry, ok := c.entries[deviceID]
	c.mu.RUnlock()

	if !ok {
		return CachedStatus{}, false
	}
	if c.now().After(entry.expiresAt) {
		// Lazy expiry; the purge loop reclaims the memory.
		return CachedStatus{}, false
	}
	return entry.value, true
}

// Invalidate removes a device's entry, forcing the next read to the repository.
func (c *StatusCache) Invalidate(deviceID string) {
	c.mu.Lock()
	delete(c.entries, deviceID)
	c.mu.Unlock()
}

// Len returns the number of entries currently held, including expired ones
// not yet purged.
func (c *StatusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes all expired entries and returns how many were dropped.
func (c *StatusCache) Purge() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			dropped++
		}
	}
	return dropped
}

// StartPurgeLoop purges expired entries periodically until done is closed
// or the returned stop function is called.
func (c *StatusCache) StartPurgeLoop(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.Purge()
			}
		}
	}()
}
