package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("REGISTRY_PATH", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PRICE_CACHE_TTL", "")

	cfg := loadConfig("", "")
	assert.Equal(t, ":8080", cfg.httpAddr)
	assert.Equal(t, "config/registry.yaml", cfg.registryPath)
	assert.Equal(t, 30*time.Second, cfg.priceTTL)
	assert.Empty(t, cfg.redisAddr)
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("REGISTRY_PATH", "/etc/registry.yaml")
	t.Setenv("PRICE_CACHE_TTL", "1m")

	cfg := loadConfig(":9100", "")
	assert.Equal(t, ":9100", cfg.httpAddr)
	assert.Equal(t, "/etc/registry.yaml", cfg.registryPath)
	assert.Equal(t, time.Minute, cfg.priceTTL)
}

func TestNewPriceCache_InMemoryWithoutRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cache, closeCache, err := newPriceCache(context.Background(), logger, config{}, 1)
	require.NoError(t, err)
	defer closeCache()
	assert.NotNil(t, cache)
}

func TestRun_FailsOnMissingRegistry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config{
		registryPath: filepath.Join(t.TempDir(), "missing.yaml"),
		rpcURL:       "http://127.0.0.1:1",
	}

	err := run(context.Background(), logger, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading registry")
}
