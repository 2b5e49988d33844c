package rbac

import (
	"sync"
	"testing"
	"time"
)

func TestCacheTTLExpiry(t *testing.T) {
	c := newPermissionCache(20 * time.Millisecond)
	c.set(1, []Permission{{Resource: "storage", Action: "read"}}, nil)

	if _, ok := c.get(1); !ok {
		t.Fatal("fresh entry must be served")
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.get(1); ok {
		t.Fatal("entry past TTL must not be served")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := newPermissionCache(time.Hour)
	c.set(1, []Permission{{Resource: "storage", Action: "read"}}, nil)
	c.set(2, []Permission{{Resource: "audit", Action: "read"}}, nil)

	c.invalidate(1)
	if _, ok := c.get(1); ok {
		t.Fatal("invalidated entry must be gone")
	}
	if _, ok := c.get(2); !ok {
		t.Fatal("other entries must survive a single invalidation")
	}

	c.invalidateAll()
	if _, ok := c.get(2); ok {
		t.Fatal("invalidateAll must clear everything")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := newPermissionCache(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.set(userID, []Permission{{Resource: "storage", Action: "read"}}, nil)
				c.get(userID)
				c.invalidate(userID)
			}
		}(int64(i % 4))
	}
	wg.Wait()
}
