// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type CacheCfg struct {
	Enabled    bool
	Driver     string
	Size       int
	RedisAddr  string
	TTLDefault time.Duration
	TTLCold    time.Duration
	TTLWarm    time.Duration
	TTLHot     time.Duration
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	StatsStrategy  string
	CircleVertices int
	TmpDir         string
	MaxUploadBytes int64
	Cache          CacheCfg
	HotThreshold   float64
	HotHalfLife    time.Duration
	HotH3Res       int
}

func FromEnv() Config {
	ttlDefault := getduration("CACHE_TTL_DEFAULT", 5*time.Minute)

	res := getint("HOT_H3_RES", 5)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	verts := getint("CIRCLE_VERTICES", 360)
	if verts < 8 {
		verts = 8
	}

	return Config{
		Addr:           getenv("ADDR", ":8080"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		StatsStrategy:  getenv("STATS_STRATEGY", "exact"),
		CircleVertices: verts,
		TmpDir:         getenv("TMP_DIR", ""),
		MaxUploadBytes: getint64("MAX_UPLOAD_BYTES", 512<<20),
		Cache: CacheCfg{
			Enabled:    getbool("CACHE_ENABLED", true),
			Driver:     getenv("CACHE_DRIVER", "memory"),
			Size:       getint("CACHE_SIZE", 1024),
			RedisAddr:  getenv("REDIS_ADDR", "localhost:6379"),
			TTLDefault: ttlDefault,
			TTLCold:    getduration("CACHE_TTL_COLD", ttlDefault/2),
			TTLWarm:    getduration("CACHE_TTL_WARM", ttlDefault),
			TTLHot:     getduration("CACHE_TTL_HOT", 2*ttlDefault),
		},
		HotThreshold: getfloat("HOT_THRESHOLD", 10.0),
		HotHalfLife:  getduration("HOT_HALF_LIFE", time.Minute),
		HotH3Res:     res,
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
