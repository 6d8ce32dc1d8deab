package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/1001-digital/ponder-artifacts/internal/api"
	"github.com/1001-digital/ponder-artifacts/internal/artifacts"
	"github.com/1001-digital/ponder-artifacts/internal/cache"
	"github.com/1001-digital/ponder-artifacts/internal/config"
	"github.com/1001-digital/ponder-artifacts/internal/metadata"
	"github.com/1001-digital/ponder-artifacts/internal/rpc"
	"github.com/1001-digital/ponder-artifacts/internal/store"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		errLogger := zerolog.New(os.Stderr)
		errLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Command line flags override the environment
	var (
		httpAddr = flag.String("http-addr", cfg.HTTPAddr, "HTTP server address")
		rpcURL   = flag.String("rpc-url", cfg.RPCURL, "JSON-RPC node URL (can also be set via RPC_URL)")
		dbURL    = flag.String("database-url", cfg.DatabaseURL, "Postgres DSN (can also be set via DATABASE_URL)")
		redisURL = flag.String("redis-url", cfg.RedisURL, "Redis URL for the shared hot cache (optional)")
		cacheTTL = flag.Duration("cache-ttl", cfg.CacheTTL, "record freshness window")
		logLevel = flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	if *rpcURL == "" {
		logger.Fatal().Msg("RPC node URL is required. Set RPC_URL or use -rpc-url")
	}
	if *dbURL == "" {
		logger.Fatal().Msg("Postgres DSN is required. Set DATABASE_URL or use -database-url")
	}

	ctx := context.Background()

	pg, err := store.NewPostgresStore(ctx, *dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pg.Close()

	hot, cleanup, err := buildHotCache(*redisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize hot cache")
	}
	defer cleanup()

	service := artifacts.NewService(
		pg,
		rpc.NewClient(*rpcURL),
		metadata.NewFetcher(cfg.Gateways()),
		hot,
		artifacts.Options{
			CacheTTL:    *cacheTTL,
			HotCacheTTL: cfg.HotCacheTTL,
			Logger:      logger,
		},
	)

	server := api.NewServer(*httpAddr, service, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info().
		Str("http_addr", *httpAddr).
		Dur("cache_ttl", *cacheTTL).
		Bool("redis", *redisURL != "").
		Msg("ponder-artifacts started")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errChan:
		logger.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down server")
	}
	logger.Info().Msg("shutdown completed")
}

// buildHotCache returns the Redis-backed cache when a URL is configured and
// an in-process cache otherwise.
func buildHotCache(redisURL string, logger zerolog.Logger) (cache.RecordCache, func(), error) {
	if redisURL != "" {
		redisCache, err := cache.NewRedisCache(redisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("using redis hot cache")
		return redisCache, func() { _ = redisCache.Close() }, nil
	}

	memCache, err := cache.NewMemoryCache()
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("using in-process hot cache")
	return memCache, memCache.Close, nil
}
