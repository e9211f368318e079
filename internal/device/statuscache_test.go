package device

import (
	"testing"
	"time"
)

func TestStatusCache_SetGet(t *testing.T) {
	cache := NewStatusCache(time.Minute)

	now := time.Now().UTC()
	cache.Set("KIOSK-001", CachedStatus{Status: StatusOnline, LastSeen: now})

	got, ok := cache.Get("KIOSK-001")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Status != StatusOnline {
		t.Errorf("status = %q, want online", got.Status)
	}
	if !got.LastSeen.Equal(now) {
		t.Errorf("last_seen = %v, want %v", got.LastSeen, now)
	}

	if _, ok := cache.Get("unknown"); ok {
		t.Error("expected miss for unknown device")
	}
}

func TestStatusCache_LazyExpiry(t *testing.T) {
	cache := NewStatusCache(time.Minute)

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Set("KIOSK-001", CachedStatus{Status: StatusOnline, LastSeen: base})

	// Still fresh just before the TTL.
	cache.now = func() time.Time { return base.Add(59 * time.Second) }
	if _, ok := cache.Get("KIOSK-001"); !ok {
		t.Error("entry expired too early")
	}

	// A read past the TTL misses even though no purge has run.
	cache.now = func() time.Time { return base.Add(61 * time.Second) }
	if _, ok := cache.Get("KIOSK-001"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestStatusCache_SetRefreshesTTL(t *testing.T) {
	cache := NewStatusCache(time.Minute)

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Set("KIOSK-001", CachedStatus{Status: StatusOnline, LastSeen: base})

	cache.now = func() time.Time { return base.Add(45 * time.Second) }
	cache.Set("KIOSK-001", CachedStatus{Status: StatusOnline, LastSeen: base.Add(45 * time.Second)})

	// 90s after the first Set but only 45s after the refresh.
	cache.now = func() time.Time { return base.Add(90 * time.Second) }
	if _, ok := cache.Get("KIOSK-001"); !ok {
		t.Error("refreshed entry must not expire on the original clock")
	}
}

func TestStatusCache_Invalidate(t *testing.T) {
	cache := NewStatusCache(time.Minute)

	cache.Set("KIOSK-001", CachedStatus{Status: StatusOnline, LastSeen: time.Now()})
	cache.Invalidate("KIOSK-001")

	if _, ok := cache.Get("KIOSK-001"); ok {
		t.Error("expected miss after Invalidate")
	}

	// Invalidating an absent key is a no-op.
	cache.Invalidate("unknown")
}

func TestStatusCache_Purge(t *testing.T) {
	cache := NewStatusCache(time.Minute)

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.Set("OLD", CachedStatus{Status: StatusOnline, LastSeen: base})

	cache.now = func() time.Time { return base.Add(2 * time.Minute) }
	cache.Set("NEW", CachedStatus{Status: StatusOnline, LastSeen: base.Add(2 * time.Minute)})

	removed := cache.Purge()
	if removed != 1 {
		t.Errorf("Purge removed %d, want 1", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Len = %d, want 1", cache.Len())
	}
	if _, ok := cache.Get("NEW"); !ok {
		t.Error("fresh entry must survive a purge")
	}
}
