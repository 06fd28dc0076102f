//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var gold = common.HexToAddress("0x45804880De22913dAFE09f4980848ECE6EcbAf78")

// setupRedis starts a Redis container and returns a connected PriceCache.
func setupRedis(t *testing.T) *PriceCache {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cache, err := NewPriceCache(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		KeyPrefix: "test",
		ChainID:   1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	for i := 0; i < 30; i++ {
		if err := cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, cache.Ping(ctx))
	return cache
}

func TestPriceCache_SetGet(t *testing.T) {
	cache := setupRedis(t)
	ctx := context.Background()

	_, ok, err := cache.GetPrice(ctx, gold)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache")

	price := decimal.RequireFromString("4012.123456789012345678")
	require.NoError(t, cache.SetPrice(ctx, gold, price, time.Minute))

	got, ok, err := cache.GetPrice(ctx, gold)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(price))
}

func TestPriceCache_Expires(t *testing.T) {
	cache := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.SetPrice(ctx, gold, decimal.NewFromInt(1), time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, ok, err := cache.GetPrice(ctx, gold)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPriceCache_MalformedValueIsAMiss(t *testing.T) {
	cache := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.client.Set(ctx, cache.key(gold), "not-a-number", time.Minute).Err())

	_, ok, err := cache.GetPrice(ctx, gold)
	require.NoError(t, err)
	assert.False(t, ok)
}
