// Package memory provides in-memory implementations of outbound ports for
// single-instance deployments and tests. Data is lost on process restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.PriceCache = (*PriceCache)(nil)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("cache is closed")

type cachedPrice struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// PriceCache is an in-memory PriceCache. Expired entries are dropped lazily
// on read.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[common.Address]cachedPrice
	now    func() time.Time
	closed bool
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		prices: make(map[common.Address]cachedPrice),
		now:    time.Now,
	}
}

func (c *PriceCache) GetPrice(_ context.Context, token common.Address) (decimal.Decimal, bool, error) {
	c.mu.RLock()
	entry, ok := c.prices[token]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return decimal.Zero, false, ErrClosed
	}
	if !ok {
		return decimal.Zero, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.prices[token]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(c.prices, token)
		}
		c.mu.Unlock()
		return decimal.Zero, false, nil
	}
	return entry.price, true, nil
}

func (c *PriceCache) SetPrice(_ context.Context, token common.Address, price decimal.Decimal, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("price ttl must be positive, got %s", ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.prices[token] = cachedPrice{price: price, expiresAt: c.now().Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

func (c *PriceCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.prices = make(map[common.Address]cachedPrice)
	return nil
}
