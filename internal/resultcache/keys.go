package resultcache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const keyPrefix = "za"

// Key builds a deterministic cache key for one query against one raster.
// payload is the canonicalized request (shape parameters, stats, band); only
// its hash lands in the key so arbitrary payload bytes stay redis-safe.
func Key(rasterID, shape string, payload []byte) string {
	return fmt.Sprintf("%s:%s:%s:%016x", keyPrefix, rasterID, shape, xxhash.Sum64(payload))
}

// rasterPrefix is the common key prefix of every query against one raster,
// used for invalidation on unload.
func rasterPrefix(rasterID string) string {
	return fmt.Sprintf("%s:%s:", keyPrefix, rasterID)
}

// indexKey names the per-raster set of live cache keys (redis driver).
func indexKey(rasterID string) string {
	return fmt.Sprintf("%s:idx:%s", keyPrefix, rasterID)
}
