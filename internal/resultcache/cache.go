// Package resultcache caches serialized query results keyed by raster and
// canonicalized request. Entries for a raster are dropped when the raster is
// unloaded. Two drivers share the contract: an in-process LRU and Redis.
package resultcache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Interface is the result cache contract. Implementations tolerate failures
// silently: a broken cache degrades to recomputation, never to a query error.
type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// InvalidateRaster drops every entry belonging to one raster.
	InvalidateRaster(ctx context.Context, rasterID string)
	Close() error
}

// Disabled is the no-op cache used when caching is off.
type Disabled struct{}

var _ Interface = Disabled{}

func (Disabled) Get(context.Context, string) ([]byte, bool)        { return nil, false }
func (Disabled) Set(context.Context, string, []byte, time.Duration) {}
func (Disabled) InvalidateRaster(context.Context, string)           {}
func (Disabled) Close() error                                       { return nil }

type memEntry struct {
	val     []byte
	expires time.Time
}

// Memory is the in-process LRU driver. TTLs are honored lazily on Get.
type Memory struct {
	lru *lru.Cache[string, memEntry]
	now func() time.Time
}

var _ Interface = (*Memory)(nil)

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, memEntry](size)
	return &Memory{lru: c, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.lru.Remove(key)
		return nil, false
	}
	return e.val, true
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.lru.Add(key, memEntry{val: val, expires: exp})
}

func (m *Memory) InvalidateRaster(_ context.Context, rasterID string) {
	prefix := rasterPrefix(rasterID)
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
}

func (m *Memory) Close() error { return nil }
