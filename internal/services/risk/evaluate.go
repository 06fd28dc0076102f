package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
)

// Inputs are the raw facts a position's metrics are derived from.
type Inputs struct {
	CollateralAmount decimal.Decimal
	DebtAmount       decimal.Decimal

	// Price is the USD price of one collateral token.
	Price decimal.Decimal

	// DebtRate converts debt to USD. Nil means the debt token is pegged 1:1.
	DebtRate *decimal.Decimal

	Config entity.VaultConfig
}

// Metrics are the derived solvency figures of a position.
type Metrics struct {
	CollateralValueUSD   decimal.Decimal
	DebtValueUSD         decimal.Decimal
	HealthFactor         entity.HealthFactor
	CurrentLTV           decimal.Decimal
	LiquidationPrice     decimal.Decimal
	AvailableToBorrowUSD decimal.Decimal
	Status               entity.PositionStatus
}

// Evaluate computes Metrics with DefaultThresholds.
func Evaluate(in Inputs) Metrics {
	return EvaluateWith(in, DefaultThresholds())
}

// EvaluateWith computes Metrics with custom thresholds.
func EvaluateWith(in Inputs, thresholds Thresholds) Metrics {
	collateralUSD := CollateralValueUSD(in.CollateralAmount, in.Price)
	debtUSD := DebtValueUSD(in.DebtAmount)
	if in.DebtRate != nil {
		debtUSD = ConvertedDebtValueUSD(in.DebtAmount, *in.DebtRate)
	}

	hf := HealthFactor(collateralUSD, debtUSD, in.Config.LiquidationThreshold)

	return Metrics{
		CollateralValueUSD:   collateralUSD,
		DebtValueUSD:         debtUSD,
		HealthFactor:         hf,
		CurrentLTV:           CurrentLTV(collateralUSD, debtUSD),
		LiquidationPrice:     LiquidationPrice(in.CollateralAmount, debtUSD, in.Config.LiquidationThreshold),
		AvailableToBorrowUSD: AvailableToBorrowUSD(collateralUSD, debtUSD, in.Config.MaxLTV),
		Status:               thresholds.Classify(hf),
	}
}

// ProjectAfter evaluates the position that results from applying signed
// deltas to the current amounts. A delta that would make an amount negative
// is an error.
func ProjectAfter(current Inputs, deltaCollateral, deltaDebt decimal.Decimal) (Metrics, error) {
	next := current
	next.CollateralAmount = current.CollateralAmount.Add(deltaCollateral)
	next.DebtAmount = current.DebtAmount.Add(deltaDebt)

	if next.CollateralAmount.IsNegative() {
		return Metrics{}, fmt.Errorf("collateral would become negative: %s", next.CollateralAmount)
	}
	if next.DebtAmount.IsNegative() {
		return Metrics{}, fmt.Errorf("debt would become negative: %s", next.DebtAmount)
	}
	return Evaluate(next), nil
}

// Apply copies the metrics into a position.
func (m Metrics) Apply(p *entity.Position) {
	p.CollateralValueUSD = m.CollateralValueUSD
	p.DebtValueUSD = m.DebtValueUSD
	p.HealthFactor = m.HealthFactor
	p.CurrentLTV = m.CurrentLTV
	p.LiquidationPrice = m.LiquidationPrice
	p.AvailableToBorrowUSD = m.AvailableToBorrowUSD
	p.Status = m.Status
}
