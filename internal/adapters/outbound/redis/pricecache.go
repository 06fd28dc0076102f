// Package redis provides a Redis implementation of the PriceCache port.
//
// Prices are stored as decimal strings under prefix:chainID:price:token with
// a short TTL, so several engine instances share one upstream price budget.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.PriceCache = (*PriceCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
	// ChainID scopes keys so one Redis can serve several networks.
	ChainID int64
}

// ConfigDefaults returns defaults for the Redis price cache.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		KeyPrefix: "vault-engine",
		ChainID:   1,
	}
}

// PriceCache is a Redis implementation of the outbound.PriceCache port.
type PriceCache struct {
	client    *redis.Client
	keyPrefix string
	chainID   int64
	logger    *slog.Logger
}

// NewPriceCache creates a new Redis price cache. It does not connect until
// the first command; call Ping to check connectivity.
func NewPriceCache(cfg Config, logger *slog.Logger) (*PriceCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	defaults := ConfigDefaults()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = defaults.ChainID
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &PriceCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		chainID:   cfg.ChainID,
		logger:    logger.With("component", "redis-price-cache"),
	}, nil
}

// Ping checks the Redis connection.
func (c *PriceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *PriceCache) Close() error {
	return c.client.Close()
}

// key generates a cache key in the format prefix:chainID:price:token.
func (c *PriceCache) key(token common.Address) string {
	return fmt.Sprintf("%s:%d:price:%s", c.keyPrefix, c.chainID, strings.ToLower(token.Hex()))
}

// GetPrice returns the cached price of token, if present.
func (c *PriceCache) GetPrice(ctx context.Context, token common.Address) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, c.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get price: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		c.logger.Warn("discarding malformed cached price", "token", token, "value", raw, "error", err)
		return decimal.Zero, false, nil
	}
	return price, true, nil
}

// SetPrice caches price for ttl. A non-positive ttl is rejected because
// Redis would keep the key forever.
func (c *PriceCache) SetPrice(ctx context.Context, token common.Address, price decimal.Decimal, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("price ttl must be positive, got %s", ttl)
	}
	if err := c.client.Set(ctx, c.key(token), price.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache price: %w", err)
	}
	return nil
}
