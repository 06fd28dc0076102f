// Package pricing puts a short-lived cache in front of a price oracle.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.PriceOracle = (*Service)(nil)

// ServiceConfig holds configuration for the cached oracle.
type ServiceConfig struct {
	// TTL is how long a fetched price is served from cache.
	TTL time.Duration

	Logger *slog.Logger
}

// ServiceConfigDefaults returns a config with default values.
func ServiceConfigDefaults() ServiceConfig {
	return ServiceConfig{
		TTL:    30 * time.Second,
		Logger: slog.Default(),
	}
}

// Service is a PriceOracle that consults a PriceCache before the upstream
// oracle. Cache failures degrade to upstream reads and are never returned.
type Service struct {
	config ServiceConfig
	oracle outbound.PriceOracle
	cache  outbound.PriceCache
	logger *slog.Logger
}

// NewService creates a cached oracle.
func NewService(config ServiceConfig, oracle outbound.PriceOracle, cache outbound.PriceCache) (*Service, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}

	defaults := ServiceConfigDefaults()
	if config.TTL == 0 {
		config.TTL = defaults.TTL
	}
	if config.TTL < 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", config.TTL)
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config: config,
		oracle: oracle,
		cache:  cache,
		logger: config.Logger.With("component", "pricing"),
	}, nil
}

// CurrentPrice returns the cached price of token or fetches and caches it.
func (s *Service) CurrentPrice(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	price, ok, err := s.cache.GetPrice(ctx, token)
	if err != nil {
		s.logger.Warn("price cache read failed", "token", token, "error", err)
	} else if ok {
		return price, nil
	}

	price, err = s.oracle.CurrentPrice(ctx, token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching price of %s: %w", token.Hex(), err)
	}

	if err := s.cache.SetPrice(ctx, token, price, s.config.TTL); err != nil {
		s.logger.Warn("price cache write failed", "token", token, "error", err)
	}
	return price, nil
}
