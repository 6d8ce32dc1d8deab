// Package config collects the service's environment-driven settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/1001-digital/ponder-artifacts/internal/artifacts"
	"github.com/1001-digital/ponder-artifacts/internal/cache"
	"github.com/1001-digital/ponder-artifacts/internal/metadata"
)

// Config holds the service configuration. Every field has a working default
// except DatabaseURL and RPCURL, which must be provided.
type Config struct {
	HTTPAddr    string
	RPCURL      string
	DatabaseURL string

	// RedisURL enables the shared hot record cache; when empty an
	// in-process cache is used instead.
	RedisURL string

	CacheTTL    time.Duration
	HotCacheTTL time.Duration

	IPFSGateway    string
	ArweaveGateway string

	LogLevel string
}

// FromEnv builds a Config from environment variables and defaults.
func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		RPCURL:         os.Getenv("RPC_URL"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		CacheTTL:       artifacts.DefaultCacheTTL,
		HotCacheTTL:    cache.DefaultTTL,
		IPFSGateway:    getenv("IPFS_GATEWAY", metadata.DefaultGateways.IPFS),
		ArweaveGateway: getenv("ARWEAVE_GATEWAY", metadata.DefaultGateways.Arweave),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CACHE_TTL %q: %w", raw, err)
		}
		cfg.CacheTTL = ttl
	}
	if raw := os.Getenv("HOT_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HOT_CACHE_TTL %q: %w", raw, err)
		}
		cfg.HotCacheTTL = ttl
	}

	return cfg, nil
}

// Gateways returns the metadata gateway configuration.
func (c Config) Gateways() metadata.Gateways {
	return metadata.Gateways{
		IPFS:    c.IPFSGateway,
		Arweave: c.ArweaveGateway,
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
