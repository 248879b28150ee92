package resultcache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newMini(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := NewRedis(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestRedis_SetGet(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	k := Key("r1", "circle", []byte("payload"))
	if _, ok := rc.Get(ctx, k); ok {
		t.Fatal("hit on empty cache")
	}
	rc.Set(ctx, k, []byte("results"), time.Minute)
	got, ok := rc.Get(ctx, k)
	if !ok || string(got) != "results" {
		t.Fatalf("Get = %q,%v after Set", got, ok)
	}
}

func TestRedis_TTLApplied(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	k := Key("r1", "band", []byte("p"))
	rc.Set(ctx, k, []byte("v"), time.Minute)

	mr.FastForward(2 * time.Minute)
	if _, ok := rc.Get(ctx, k); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestRedis_InvalidateRasterDropsOnlyThatRaster(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	kA1 := Key("rasterA", "circle", []byte("q1"))
	kA2 := Key("rasterA", "band", []byte("q2"))
	kB := Key("rasterB", "circle", []byte("q1"))
	rc.Set(ctx, kA1, []byte("a1"), time.Minute)
	rc.Set(ctx, kA2, []byte("a2"), time.Minute)
	rc.Set(ctx, kB, []byte("b"), time.Minute)

	rc.InvalidateRaster(ctx, "rasterA")

	if _, ok := rc.Get(ctx, kA1); ok {
		t.Fatal("rasterA circle entry survived invalidation")
	}
	if _, ok := rc.Get(ctx, kA2); ok {
		t.Fatal("rasterA band entry survived invalidation")
	}
	if _, ok := rc.Get(ctx, kB); !ok {
		t.Fatal("rasterB entry dropped by rasterA invalidation")
	}
}

func TestRedis_InvalidateUnknownRasterIsNoop(t *testing.T) {
	rc, _ := newMini(t)
	rc.InvalidateRaster(context.Background(), "never-loaded")
}

func TestNewRedis_RequiresAddr(t *testing.T) {
	if _, err := NewRedis(context.Background(), ""); err == nil {
		t.Fatal("empty address accepted")
	}
}
