package resultcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"geoanalyzer/internal/observability"
)

// Redis is the shared-cache driver. A per-raster set indexes live keys so
// unload can drop them without a blocking scan.
type Redis struct {
	rdb *redis.Client
}

var _ Interface = (*Redis)(nil)

type RedisOption func(*redis.Options)

func WithPoolSize(n int) RedisOption {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) RedisOption {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func NewRedis(ctx context.Context, addr string, opts ...RedisOption) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	for _, f := range opts {
		f(ro)
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Bytes()
	observability.ObserveCacheOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	// the key must land in the raster index before the value becomes
	// readable, otherwise an unload racing this set could strand the entry
	rasterID := rasterIDFromKey(key)
	start := time.Now()
	pipe := c.rdb.TxPipeline()
	if rasterID != "" {
		idx := indexKey(rasterID)
		pipe.SAdd(ctx, idx, key)
		if ttl > 0 {
			// keep the index alive at least as long as its newest member
			pipe.Expire(ctx, idx, ttl+time.Minute)
		}
	}
	pipe.Set(ctx, key, val, ttl)
	_, err := pipe.Exec(ctx)
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
}

func (c *Redis) InvalidateRaster(ctx context.Context, rasterID string) {
	idx := indexKey(rasterID)
	start := time.Now()
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err == nil && len(keys) > 0 {
		err = c.rdb.Del(ctx, append(keys, idx)...).Err()
	} else if err == nil {
		err = c.rdb.Del(ctx, idx).Err()
	}
	observability.ObserveCacheOp("invalidate", err, time.Since(start).Seconds())
}

func (c *Redis) Close() error { return c.rdb.Close() }

// rasterIDFromKey pulls the raster segment back out of "za:<raster>:...".
func rasterIDFromKey(key string) string {
	const p = keyPrefix + ":"
	if len(key) <= len(p) || key[:len(p)] != p {
		return ""
	}
	rest := key[len(p):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return ""
}
