// Package risk turns raw position amounts, a collateral price and a vault's
// risk parameters into solvency metrics. Every function is pure.
//
// Percentages (LTV, thresholds) are plain numbers in [0,100]. Divisions are
// carried out to divisionPrecision digits; nothing is rounded for display.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
)

const divisionPrecision = 36

var hundred = decimal.NewFromInt(100)

// Thresholds are the health factor bounds used to classify a position. Each
// bound is inclusive and they are checked in order Liquidated, Danger, Warning.
type Thresholds struct {
	Liquidated decimal.Decimal
	Danger     decimal.Decimal
	Warning    decimal.Decimal
}

// DefaultThresholds returns the 1.0 / 1.2 / 1.5 bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Liquidated: decimal.NewFromInt(1),
		Danger:     decimal.RequireFromString("1.2"),
		Warning:    decimal.RequireFromString("1.5"),
	}
}

// Validate checks that the bounds are positive and strictly increasing.
func (t Thresholds) Validate() error {
	if !t.Liquidated.IsPositive() {
		return fmt.Errorf("liquidated threshold must be positive, got %s", t.Liquidated)
	}
	if !t.Danger.GreaterThan(t.Liquidated) || !t.Warning.GreaterThan(t.Danger) {
		return fmt.Errorf("thresholds must increase: %s < %s < %s", t.Liquidated, t.Danger, t.Warning)
	}
	return nil
}

// Classify maps a health factor to a status. The infinite health factor is Safe.
func (t Thresholds) Classify(hf entity.HealthFactor) entity.PositionStatus {
	switch {
	case hf.LessThanOrEqual(t.Liquidated):
		return entity.StatusLiquidated
	case hf.LessThanOrEqual(t.Danger):
		return entity.StatusDanger
	case hf.LessThanOrEqual(t.Warning):
		return entity.StatusWarning
	default:
		return entity.StatusSafe
	}
}

// ClassifyStatus classifies hf with DefaultThresholds.
func ClassifyStatus(hf entity.HealthFactor) entity.PositionStatus {
	return DefaultThresholds().Classify(hf)
}

// CollateralValueUSD is collateralAmount × price.
func CollateralValueUSD(collateralAmount, price decimal.Decimal) decimal.Decimal {
	return collateralAmount.Mul(price)
}

// DebtValueUSD values debt pegged 1:1 to USD.
func DebtValueUSD(debtAmount decimal.Decimal) decimal.Decimal {
	return debtAmount
}

// ConvertedDebtValueUSD values debt whose token is not pegged, at rate USD per unit.
func ConvertedDebtValueUSD(debtAmount, rate decimal.Decimal) decimal.Decimal {
	return debtAmount.Mul(rate)
}

// HealthFactor is collateralUSD × threshold/100 / debtUSD. Zero debt yields
// the infinite sentinel; zero collateral against debt yields 0.
func HealthFactor(collateralUSD, debtUSD, liquidationThreshold decimal.Decimal) entity.HealthFactor {
	if debtUSD.IsZero() {
		return entity.InfiniteHealthFactor()
	}
	if collateralUSD.IsZero() {
		return entity.FiniteHealthFactor(decimal.Zero)
	}
	weighted := collateralUSD.Mul(liquidationThreshold).DivRound(hundred, divisionPrecision)
	return entity.FiniteHealthFactor(weighted.DivRound(debtUSD, divisionPrecision))
}

// CurrentLTV is debtUSD / collateralUSD × 100, or 0 without collateral.
func CurrentLTV(collateralUSD, debtUSD decimal.Decimal) decimal.Decimal {
	if collateralUSD.IsZero() {
		return decimal.Zero
	}
	return debtUSD.Mul(hundred).DivRound(collateralUSD, divisionPrecision)
}

// LiquidationPrice is the collateral price at which the health factor reaches 1.
// It is 0 when the collateral amount or the threshold is zero.
func LiquidationPrice(collateralAmount, debtUSD, liquidationThreshold decimal.Decimal) decimal.Decimal {
	if collateralAmount.IsZero() || liquidationThreshold.IsZero() {
		return decimal.Zero
	}
	weighted := collateralAmount.Mul(liquidationThreshold).DivRound(hundred, divisionPrecision)
	return debtUSD.DivRound(weighted, divisionPrecision)
}

// AvailableToBorrowUSD is max(0, collateralUSD × maxLTV/100 − debtUSD).
func AvailableToBorrowUSD(collateralUSD, debtUSD, maxLTV decimal.Decimal) decimal.Decimal {
	capacity := collateralUSD.Mul(maxLTV).DivRound(hundred, divisionPrecision)
	available := capacity.Sub(debtUSD)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}
