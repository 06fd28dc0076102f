package entity

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PositionStatus classifies a position's distance from liquidation.
type PositionStatus int

const (
	StatusSafe PositionStatus = iota
	StatusWarning
	StatusDanger
	StatusLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case StatusSafe:
		return "safe"
	case StatusWarning:
		return "warning"
	case StatusDanger:
		return "danger"
	case StatusLiquidated:
		return "liquidated"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s PositionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// HealthFactor is either a finite decimal or the infinite sentinel used for
// debt-free positions.
type HealthFactor struct {
	value    decimal.Decimal
	infinite bool
}

// InfiniteHealthFactor returns the sentinel for positions without debt.
func InfiniteHealthFactor() HealthFactor {
	return HealthFactor{infinite: true}
}

// FiniteHealthFactor wraps a decimal health factor.
func FiniteHealthFactor(v decimal.Decimal) HealthFactor {
	return HealthFactor{value: v}
}

func (h HealthFactor) IsInfinite() bool {
	return h.infinite
}

// Value returns the decimal value. It is zero for the infinite sentinel.
func (h HealthFactor) Value() decimal.Decimal {
	return h.value
}

// LessThanOrEqual reports whether h <= v. Infinity is never <= a finite value.
func (h HealthFactor) LessThanOrEqual(v decimal.Decimal) bool {
	if h.infinite {
		return false
	}
	return h.value.LessThanOrEqual(v)
}

// GreaterThan reports whether h > v.
func (h HealthFactor) GreaterThan(v decimal.Decimal) bool {
	return !h.LessThanOrEqual(v)
}

func (h HealthFactor) String() string {
	if h.infinite {
		return "inf"
	}
	return h.value.String()
}

func (h HealthFactor) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// PositionKey identifies a position: one NFT inside one vault.
type PositionKey struct {
	VaultAddress common.Address
	NftID        string
}

// Position is a vault position materialised from raw chain data and a price.
// It is recomputed on every refresh and never cached.
type Position struct {
	VaultAddress         common.Address  `json:"vaultAddress"`
	NftID                *big.Int        `json:"nftId"`
	Owner                common.Address  `json:"owner"`
	CollateralAmount     TokenAmount     `json:"-"`
	DebtAmount           TokenAmount     `json:"-"`
	CollateralValueUSD   decimal.Decimal `json:"collateralValueUsd"`
	DebtValueUSD         decimal.Decimal `json:"debtValueUsd"`
	HealthFactor         HealthFactor    `json:"healthFactor"`
	CurrentLTV           decimal.Decimal `json:"currentLtv"`
	LiquidationPrice     decimal.Decimal `json:"liquidationPrice"`
	AvailableToBorrowUSD decimal.Decimal `json:"availableToBorrowUsd"`
	Status               PositionStatus  `json:"status"`
	CreatedAt            time.Time       `json:"createdAt"`
	LastRefreshedAt      time.Time       `json:"lastRefreshedAt"`
}

// Key returns the position identity.
func (p *Position) Key() PositionKey {
	id := "0"
	if p.NftID != nil {
		id = p.NftID.String()
	}
	return PositionKey{VaultAddress: p.VaultAddress, NftID: id}
}

// HasDebt reports whether the position carries any debt.
func (p *Position) HasDebt() bool {
	return p.DebtAmount.IsPositive()
}

// MarshalJSON adds the token amounts as plain decimal strings.
func (p Position) MarshalJSON() ([]byte, error) {
	type alias Position
	return json.Marshal(struct {
		alias
		CollateralAmount string `json:"collateralAmount"`
		DebtAmount       string `json:"debtAmount"`
	}{
		alias:            alias(p),
		CollateralAmount: p.CollateralAmount.Value.String(),
		DebtAmount:       p.DebtAmount.Value.String(),
	})
}
