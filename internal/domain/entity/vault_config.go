package entity

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Conservative fallbacks substituted for out-of-range on-chain risk parameters.
var (
	DefaultMaxLTV               = decimal.NewFromInt(75)
	DefaultLiquidationThreshold = decimal.NewFromInt(85)
	DefaultLiquidationPenalty   = decimal.NewFromInt(3)
)

var hundred = decimal.NewFromInt(100)

// VaultConfig holds a vault's risk parameters. Percentages are in [0,100].
// Values are immutable once constructed; a refresh builds a new VaultConfig.
type VaultConfig struct {
	VaultAddress         common.Address
	CollateralToken      common.Address
	DebtToken            common.Address
	MaxLTV               decimal.Decimal
	LiquidationThreshold decimal.Decimal
	LiquidationPenalty   decimal.Decimal
}

// NewVaultConfig builds a VaultConfig, replacing every percentage outside
// (0,100] by its default. If the liquidation threshold ends up below maxLTV
// both are reset to their defaults. The names of substituted fields are
// returned so callers can log them.
func NewVaultConfig(
	vault, collateralToken, debtToken common.Address,
	maxLTV, liquidationThreshold, liquidationPenalty decimal.Decimal,
) (VaultConfig, []string) {
	var clamped []string

	clamp := func(name string, v, fallback decimal.Decimal) decimal.Decimal {
		if !validPercent(v) {
			clamped = append(clamped, name)
			return fallback
		}
		return v
	}

	cfg := VaultConfig{
		VaultAddress:         vault,
		CollateralToken:      collateralToken,
		DebtToken:            debtToken,
		MaxLTV:               clamp("maxLTV", maxLTV, DefaultMaxLTV),
		LiquidationThreshold: clamp("liquidationThreshold", liquidationThreshold, DefaultLiquidationThreshold),
		LiquidationPenalty:   clamp("liquidationPenalty", liquidationPenalty, DefaultLiquidationPenalty),
	}

	if cfg.LiquidationThreshold.LessThan(cfg.MaxLTV) {
		clamped = append(clamped, "maxLTV", "liquidationThreshold")
		cfg.MaxLTV = DefaultMaxLTV
		cfg.LiquidationThreshold = DefaultLiquidationThreshold
	}

	return cfg, clamped
}

func validPercent(v decimal.Decimal) bool {
	return v.IsPositive() && v.LessThanOrEqual(hundred)
}
