package rbac

import (
	"sync"
	"time"
)

// permissionCache holds per-user effective permissions and roles behind one
// coarse reader/writer lock. Role mutations are rare relative to permission
// reads, so a single lock over the whole map is the correctness-first
// baseline. Invalidation deletes the entry so the next read reloads from the
// source of truth; stale and fresh state are never merged.
type permissionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	permissions []Permission
	roles       []Role
	lastUpdate  time.Time
}

func newPermissionCache(ttl time.Duration) *permissionCache {
	return &permissionCache{
		ttl:     ttl,
		entries: make(map[int64]cacheEntry),
	}
}

// get returns the cached entry if it is younger than the TTL.
func (c *permissionCache) get(userID int64) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[userID]
	if !ok || time.Since(entry.lastUpdate) >= c.ttl {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *permissionCache) set(userID int64, permissions []Permission, roles []Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{
		permissions: permissions,
		roles:       roles,
		lastUpdate:  time.Now(),
	}
}

// invalidate removes a user's entry entirely.
func (c *permissionCache) invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// invalidateAll clears the cache, used when a role's permission set changes
// and the affected user set is unknown.
func (c *permissionCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]cacheEntry)
}
