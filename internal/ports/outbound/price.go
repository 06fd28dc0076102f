package outbound

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PriceOracle returns the current USD price of a token.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, token common.Address) (decimal.Decimal, error)
}

// PriceCache stores recent prices keyed by token address.
type PriceCache interface {
	// GetPrice returns the cached price and whether it was present.
	GetPrice(ctx context.Context, token common.Address) (decimal.Decimal, bool, error)

	// SetPrice stores a price for ttl.
	SetPrice(ctx context.Context, token common.Address, price decimal.Decimal, ttl time.Duration) error

	// Close releases the cache connection.
	Close() error
}
