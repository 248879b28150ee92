package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"geoanalyzer/internal/api"
	"geoanalyzer/internal/config"
	"geoanalyzer/internal/hotness"
	"geoanalyzer/internal/logger"
	"geoanalyzer/internal/observability"
	"geoanalyzer/internal/query"
	"geoanalyzer/internal/raster"
	"geoanalyzer/internal/raster/gtiff"
	"geoanalyzer/internal/resultcache"
	"geoanalyzer/internal/server"
	"geoanalyzer/internal/zonal"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	strategyFlag := flag.String("strategy", "", "override STATS_STRATEGY (exact or masked)")
	flag.Parse()

	_ = godotenv.Load(".env")
	cfg := config.FromEnv()
	if *strategyFlag != "" {
		cfg.StatsStrategy = strings.TrimSpace(*strategyFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "geoanalyzer",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	strategy := zonal.ParseStrategy(cfg.StatsStrategy)
	observability.ExposeBuildInfo(Version, string(strategy))

	reg, err := raster.NewRegistry(gtiff.Open, cfg.TmpDir)
	if err != nil {
		appLog.Error("registry setup failed", "err", err)
		return 1
	}
	defer reg.CleanupAll()

	engine := zonal.New(gtiff.Open, strategy)
	runner := query.NewRunner(engine, cfg.CircleVertices)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache resultcache.Interface = resultcache.Disabled{}
	if cfg.Cache.Enabled {
		switch strings.ToLower(cfg.Cache.Driver) {
		case "redis":
			dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			c, err := resultcache.NewRedis(dialCtx, cfg.Cache.RedisAddr)
			cancel()
			if err != nil {
				appLog.Error("redis cache unavailable, continuing without cache", "addr", cfg.Cache.RedisAddr, "err", err)
			} else {
				cache = c
			}
		default:
			cache = resultcache.NewMemory(cfg.Cache.Size)
		}
	}
	defer func() { _ = cache.Close() }()

	var tracker hotness.Tracker = hotness.Nop{}
	if cfg.Cache.Enabled {
		tracker = hotness.NewDecay(cfg.HotHalfLife)
	}

	handlers := api.New(appLog, reg, runner, engine, cache, tracker, api.TTLPolicy{
		Default:   cfg.Cache.TTLDefault,
		Cold:      cfg.Cache.TTLCold,
		Warm:      cfg.Cache.TTLWarm,
		Hot:       cfg.Cache.TTLHot,
		Threshold: cfg.HotThreshold,
		H3Res:     cfg.HotH3Res,
	}, cfg.MaxUploadBytes)

	appLog.Info("starting geoanalyzer",
		"addr", cfg.Addr,
		"version", Version,
		"strategy", string(strategy),
		"cache", cfg.Cache.Driver,
		"cache_enabled", cfg.Cache.Enabled)

	if err := server.Run(ctx, cfg, appLog, handlers); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
