package resultcache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestKey_DeterministicAndDistinct(t *testing.T) {
	p1 := []byte(`{"radii":[1,5],"stats":["sum"]}`)
	p2 := []byte(`{"radii":[1,5],"stats":["mean"]}`)

	k1 := Key("abc123", "circle", p1)
	if k1 != Key("abc123", "circle", p1) {
		t.Fatal("same inputs produced different keys")
	}
	if k1 == Key("abc123", "circle", p2) {
		t.Fatal("different payloads produced the same key")
	}
	if k1 == Key("def456", "circle", p1) {
		t.Fatal("different rasters produced the same key")
	}
	if !strings.HasPrefix(k1, "za:abc123:circle:") {
		t.Fatalf("unexpected key shape: %s", k1)
	}
}

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(8)
	ctx := context.Background()

	k := Key("r1", "circle", []byte("a"))
	if _, ok := m.Get(ctx, k); ok {
		t.Fatal("hit on empty cache")
	}
	m.Set(ctx, k, []byte("results"), time.Minute)
	got, ok := m.Get(ctx, k)
	if !ok || string(got) != "results" {
		t.Fatalf("Get = %q,%v after Set", got, ok)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := NewMemory(8)
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	k := Key("r1", "band", []byte("b"))
	m.Set(ctx, k, []byte("v"), time.Minute)

	now = now.Add(30 * time.Second)
	if _, ok := m.Get(ctx, k); !ok {
		t.Fatal("entry expired before its TTL")
	}
	now = now.Add(31 * time.Second)
	if _, ok := m.Get(ctx, k); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestMemory_InvalidateRaster(t *testing.T) {
	m := NewMemory(8)
	ctx := context.Background()

	kA := Key("rasterA", "circle", []byte("q"))
	kB := Key("rasterB", "circle", []byte("q"))
	m.Set(ctx, kA, []byte("a"), 0)
	m.Set(ctx, kB, []byte("b"), 0)

	m.InvalidateRaster(ctx, "rasterA")
	if _, ok := m.Get(ctx, kA); ok {
		t.Fatal("rasterA entry survived invalidation")
	}
	if _, ok := m.Get(ctx, kB); !ok {
		t.Fatal("rasterB entry dropped by rasterA invalidation")
	}
}

func TestMemory_LRUEviction(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	k1 := Key("r", "circle", []byte("1"))
	k2 := Key("r", "circle", []byte("2"))
	k3 := Key("r", "circle", []byte("3"))
	m.Set(ctx, k1, []byte("1"), 0)
	m.Set(ctx, k2, []byte("2"), 0)
	m.Set(ctx, k3, []byte("3"), 0)

	if _, ok := m.Get(ctx, k1); ok {
		t.Fatal("oldest entry survived past capacity")
	}
	if _, ok := m.Get(ctx, k3); !ok {
		t.Fatal("newest entry evicted")
	}
}

func TestDisabled_NeverHits(t *testing.T) {
	var c Interface = Disabled{}
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("disabled cache returned a hit")
	}
}

func TestRasterIDFromKey(t *testing.T) {
	if got := rasterIDFromKey(Key("abc", "rect", []byte("x"))); got != "abc" {
		t.Fatalf("rasterIDFromKey = %q, want abc", got)
	}
	if got := rasterIDFromKey("garbage"); got != "" {
		t.Fatalf("rasterIDFromKey(garbage) = %q, want empty", got)
	}
}
