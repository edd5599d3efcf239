package querycache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache() (*Cache, *mockKVStore) {
	ms := newMockKVStore()
	return New(ms, nil, zap.NewNop()), ms
}

func TestKey_Deterministic(t *testing.T) {
	a, err := Key("search", map[string]any{"query": "dal", "limit": 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Key("search", map[string]any{"limit": 10, "query": "dal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("map insertion order changed the key: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, KeyPrefix+"search:") {
		t.Errorf("key missing namespace prefix: %s", a)
	}
}

func TestKey_DiffersByNamespaceAndParams(t *testing.T) {
	a, _ := Key("search", map[string]int{"limit": 10})
	b, _ := Key("recipe", map[string]int{"limit": 10})
	c, _ := Key("search", map[string]int{"limit": 20})
	if a == b {
		t.Error("namespaces must not collide")
	}
	if a == c {
		t.Error("different params must not collide")
	}
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	key, _ := Key("search", "dal")
	c.Set(ctx, key, payload{Name: "dal", Count: 3}, time.Minute)

	var got payload
	if !c.Get(ctx, key, &got) {
		t.Fatal("expected cache hit")
	}
	if got.Name != "dal" || got.Count != 3 {
		t.Errorf("value did not round-trip: %+v", got)
	}
}

func TestCache_TTLForwarding(t *testing.T) {
	c, ms := newTestCache()
	ctx := context.Background()

	c.Set(ctx, KeyPrefix+"search:explicit", payload{}, time.Minute)
	if got := ms.ttls[KeyPrefix+"search:explicit"]; got != time.Minute {
		t.Errorf("explicit TTL not forwarded: %v", got)
	}

	c.Set(ctx, KeyPrefix+"search:default", payload{}, 0)
	if got := ms.ttls[KeyPrefix+"search:default"]; got != DefaultTTL {
		t.Errorf("zero TTL must fall back to DefaultTTL, got %v", got)
	}

	// A configured default replaces the package constant.
	ms2 := newMockKVStore()
	c2 := New(ms2, nil, zap.NewNop()).WithDefaultTTL(2 * time.Hour)
	c2.Set(ctx, KeyPrefix+"search:tuned", payload{}, 0)
	if got := ms2.ttls[KeyPrefix+"search:tuned"]; got != 2*time.Hour {
		t.Errorf("configured default TTL not used, got %v", got)
	}
}

func TestCache_MissAfterExpiry(t *testing.T) {
	c, ms := newTestCache()
	ctx := context.Background()

	key, _ := Key("search", "dal")
	c.Set(ctx, key, payload{Name: "dal"}, time.Minute)

	var got payload
	if !c.Get(ctx, key, &got) {
		t.Fatal("expected hit before expiry")
	}

	ms.expire(key)
	if c.Get(ctx, key, &got) {
		t.Error("expected miss after the store evicted the entry")
	}
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c, _ := newTestCache()

	var got payload
	if c.Get(context.Background(), KeyPrefix+"search:absent", &got) {
		t.Error("expected miss for absent key")
	}
}

func TestCache_CorruptValueIsMiss(t *testing.T) {
	c, ms := newTestCache()
	ctx := context.Background()

	key := KeyPrefix + "search:corrupt"
	ms.data[key] = []byte("{not json")

	var got payload
	if c.Get(ctx, key, &got) {
		t.Error("undecodable value must be treated as a miss")
	}
}

func TestCache_StoreFailureDegrades(t *testing.T) {
	c, ms := newTestCache()
	ctx := context.Background()
	ms.getErr = errors.New("connection refused")
	ms.setErr = errors.New("connection refused")

	var got payload
	if c.Get(ctx, "k", &got) {
		t.Error("store failure must read as a miss")
	}
	// Set must not panic or surface the failure.
	c.Set(ctx, "k", payload{}, time.Minute)
}

func TestCache_InvalidatePattern(t *testing.T) {
	c, ms := newTestCache()
	ctx := context.Background()

	c.Set(ctx, KeyPrefix+"search:aaa", payload{}, time.Minute)
	c.Set(ctx, KeyPrefix+"search:bbb", payload{}, time.Minute)
	c.Set(ctx, KeyPrefix+"recipe:r1:view", payload{}, time.Minute)

	n, err := c.InvalidatePattern(ctx, "search:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 keys removed, got %d", n)
	}
	if len(ms.data) != 1 {
		t.Errorf("expected 1 key left, got %d", len(ms.data))
	}
}

func TestCache_FlushAll(t *testing.T) {
	c, ms := newTestCache()
	ctx := context.Background()

	c.Set(ctx, KeyPrefix+"search:aaa", payload{}, time.Minute)
	c.Set(ctx, KeyPrefix+"recipe:r1:view", payload{}, time.Minute)

	n, err := c.FlushAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || len(ms.data) != 0 {
		t.Errorf("expected full flush, removed=%d left=%d", n, len(ms.data))
	}
}

func TestCache_Stats(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	key, _ := Key("search", "dal")
	c.Set(ctx, key, payload{Name: "dal"}, time.Minute)

	var got payload
	c.Get(ctx, key, &got)                 // hit
	c.Get(ctx, KeyPrefix+"absent", &got)  // miss
	c.Get(ctx, KeyPrefix+"absent2", &got) // miss

	stats := c.Stats(ctx)
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("expected 1 hit / 2 misses, got %d / %d", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.33 || stats.HitRate > 0.34 {
		t.Errorf("unexpected hit rate %g", stats.HitRate)
	}
	if stats.Keys != 1 {
		t.Errorf("expected 1 key, got %d", stats.Keys)
	}
}
