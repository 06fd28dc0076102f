package vault_tx

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/abicodec"
	"github.com/archon-research/stl/vault-engine/internal/services/risk"
)

// pull is a token transfer the vault makes from the owner during operate.
type pull struct {
	token    common.Address
	decimals int32
	amount   *big.Int
}

// leg is one operate call. Close has two legs, everything else one.
type leg struct {
	op              entity.OperationKind
	deltaCollateral *big.Int
	deltaDebt       *big.Int
	pull            *pull
}

type plan struct {
	owner common.Address
	vault common.Address
	nftID *big.Int
	legs  []leg
}

// buildPlan validates req for op and turns it into operate legs. Every
// rejection is a *entity.ValidationError; read failures are returned as is.
func (o *Orchestrator) buildPlan(ctx context.Context, op entity.OperationKind, req entity.BorrowRequest) (*plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := checkAmounts(op, req); err != nil {
		return nil, err
	}

	cfg, err := o.deps.Configs.FetchConfig(ctx, req.VaultAddress)
	if err != nil {
		return nil, fmt.Errorf("reading vault config: %w", err)
	}
	colDecimals, err := o.deps.Tokens.Decimals(cfg.CollateralToken)
	if err != nil {
		return nil, fmt.Errorf("collateral token: %w", err)
	}
	debtDecimals, err := o.deps.Tokens.Decimals(cfg.DebtToken)
	if err != nil {
		return nil, fmt.Errorf("debt token: %w", err)
	}

	colRaw, err := rawAmount("collateralAmount", req.CollateralAmount, colDecimals)
	if err != nil {
		return nil, err
	}
	debtRaw, err := rawAmount("debtAmount", req.DebtAmount, debtDecimals)
	if err != nil {
		return nil, err
	}

	current := risk.Inputs{Config: cfg}
	var position *entity.Position
	if !req.IsNewPosition() {
		position, err = o.deps.Positions.FetchPosition(ctx, req.UserAddress, req.VaultAddress, req.NftID)
		if errors.Is(err, entity.ErrPositionNotFound) {
			return nil, &entity.ValidationError{Field: "nftId", Reason: fmt.Sprintf("owner has no position %s in this vault", req.NftID)}
		}
		if err != nil {
			return nil, fmt.Errorf("reading current position: %w", err)
		}
		current.CollateralAmount = position.CollateralAmount.Value
		current.DebtAmount = position.DebtAmount.Value
	}

	p := &plan{owner: req.UserAddress, vault: req.VaultAddress, nftID: req.PositionID()}
	collateralPull := &pull{token: cfg.CollateralToken, decimals: colDecimals, amount: colRaw}
	debtPull := &pull{token: cfg.DebtToken, decimals: debtDecimals, amount: debtRaw}

	switch op {
	case entity.OpBorrow:
		if colRaw.Sign() > 0 {
			if err := o.checkBalance(ctx, "collateralAmount", collateralPull, req.UserAddress); err != nil {
				return nil, err
			}
		} else {
			collateralPull = nil
		}
		if err := o.checkRisk(ctx, current, req.CollateralAmount.Value, req.DebtAmount.Value); err != nil {
			return nil, err
		}
		p.legs = []leg{{op: op, deltaCollateral: colRaw, deltaDebt: debtRaw, pull: collateralPull}}

	case entity.OpAddCollateral:
		if err := o.checkBalance(ctx, "collateralAmount", collateralPull, req.UserAddress); err != nil {
			return nil, err
		}
		p.legs = []leg{{op: op, deltaCollateral: colRaw, deltaDebt: new(big.Int), pull: collateralPull}}

	case entity.OpRepay:
		if req.DebtAmount.Value.GreaterThan(current.DebtAmount) {
			return nil, &entity.ValidationError{
				Field:  "debtAmount",
				Reason: fmt.Sprintf("repaying %s exceeds outstanding debt %s", req.DebtAmount.Value, current.DebtAmount),
			}
		}
		if err := o.checkBalance(ctx, "debtAmount", debtPull, req.UserAddress); err != nil {
			return nil, err
		}
		p.legs = []leg{{op: op, deltaCollateral: new(big.Int), deltaDebt: new(big.Int).Neg(debtRaw), pull: debtPull}}

	case entity.OpWithdraw:
		if err := o.checkRisk(ctx, current, req.CollateralAmount.Value.Neg(), decimal.Zero); err != nil {
			return nil, err
		}
		p.legs = []leg{{op: op, deltaCollateral: new(big.Int).Neg(colRaw), deltaDebt: new(big.Int)}}

	case entity.OpClose:
		legs, err := o.closeLegs(ctx, position, req.UserAddress, collateralPull, debtPull)
		if err != nil {
			return nil, err
		}
		p.legs = legs
	}

	return p, nil
}

// closeLegs repays the whole debt, then withdraws all collateral.
func (o *Orchestrator) closeLegs(ctx context.Context, position *entity.Position, owner common.Address, collateralPull, debtPull *pull) ([]leg, error) {
	colRaw, err := abicodec.ToRawInteger(position.CollateralAmount.Value, collateralPull.decimals)
	if err != nil {
		return nil, fmt.Errorf("position collateral: %w", err)
	}
	debtRaw, err := abicodec.ToRawInteger(position.DebtAmount.Value, debtPull.decimals)
	if err != nil {
		return nil, fmt.Errorf("position debt: %w", err)
	}
	if colRaw.Sign() == 0 && debtRaw.Sign() == 0 {
		return nil, &entity.ValidationError{Field: "nftId", Reason: "position is already empty"}
	}

	var legs []leg
	if debtRaw.Sign() > 0 {
		debtPull.amount = debtRaw
		if err := o.checkBalance(ctx, "debtAmount", debtPull, owner); err != nil {
			return nil, err
		}
		legs = append(legs, leg{op: entity.OpRepay, deltaCollateral: new(big.Int), deltaDebt: new(big.Int).Neg(debtRaw), pull: debtPull})
	}
	if colRaw.Sign() > 0 {
		legs = append(legs, leg{op: entity.OpWithdraw, deltaCollateral: new(big.Int).Neg(colRaw), deltaDebt: new(big.Int)})
	}
	return legs, nil
}

func checkAmounts(op entity.OperationKind, req entity.BorrowRequest) error {
	positive := func(field string, a entity.TokenAmount) error {
		if !a.IsPositive() {
			return &entity.ValidationError{Field: field, Reason: fmt.Sprintf("must be positive for %s", op)}
		}
		return nil
	}
	existing := func() error {
		if req.IsNewPosition() {
			return &entity.ValidationError{Field: "nftId", Reason: fmt.Sprintf("%s needs an existing position", op)}
		}
		return nil
	}

	switch op {
	case entity.OpBorrow:
		if err := positive("debtAmount", req.DebtAmount); err != nil {
			return err
		}
		if req.IsNewPosition() {
			return positive("collateralAmount", req.CollateralAmount)
		}
		return nil
	case entity.OpAddCollateral:
		return positive("collateralAmount", req.CollateralAmount)
	case entity.OpRepay:
		if err := existing(); err != nil {
			return err
		}
		return positive("debtAmount", req.DebtAmount)
	case entity.OpWithdraw:
		if err := existing(); err != nil {
			return err
		}
		return positive("collateralAmount", req.CollateralAmount)
	case entity.OpClose:
		return existing()
	default:
		return &entity.ValidationError{Field: "operation", Reason: fmt.Sprintf("unknown operation %q", op)}
	}
}

// rawAmount converts a request amount to its on-chain integer. A non-zero
// amount must carry the token's decimal scale.
func rawAmount(field string, a entity.TokenAmount, decimals int32) (*big.Int, error) {
	if a.IsZero() {
		return new(big.Int), nil
	}
	if a.Decimals != decimals {
		return nil, &entity.ValidationError{Field: field, Reason: fmt.Sprintf("amount has %d decimals, token has %d", a.Decimals, decimals)}
	}
	raw, err := abicodec.ToRawInteger(a.Value, decimals)
	if err != nil {
		return nil, &entity.ValidationError{Field: field, Reason: err.Error()}
	}
	return raw, nil
}

func (o *Orchestrator) checkBalance(ctx context.Context, field string, p *pull, owner common.Address) error {
	balance, err := o.deps.Balances.BalanceOf(ctx, p.token, p.decimals, owner)
	if err != nil {
		return fmt.Errorf("reading balance: %w", err)
	}
	need := abicodec.ToScaledDecimal(p.amount, p.decimals)
	if balance.Value.LessThan(need) {
		return &entity.ValidationError{
			Field:  field,
			Reason: fmt.Sprintf("insufficient balance: have %s, need %s", balance.Value, need),
		}
	}
	return nil
}

// checkRisk rejects operations that would leave the position above maxLTV
// or at or below the health factor floor.
func (o *Orchestrator) checkRisk(ctx context.Context, current risk.Inputs, deltaCollateral, deltaDebt decimal.Decimal) error {
	price, err := o.deps.Prices.CurrentPrice(ctx, current.Config.CollateralToken)
	if err != nil {
		return fmt.Errorf("pricing collateral: %w", err)
	}
	current.Price = price

	m, err := risk.ProjectAfter(current, deltaCollateral, deltaDebt)
	if err != nil {
		return &entity.ValidationError{Field: "collateralAmount", Reason: err.Error()}
	}
	if m.CurrentLTV.GreaterThan(current.Config.MaxLTV) {
		return &entity.ValidationError{
			Field:  "ltv",
			Reason: fmt.Sprintf("resulting LTV %s%% exceeds max %s%%", m.CurrentLTV.StringFixed(2), current.Config.MaxLTV),
		}
	}
	if !m.HealthFactor.GreaterThan(o.config.MinHealthFactor) {
		return &entity.ValidationError{
			Field:  "healthFactor",
			Reason: fmt.Sprintf("resulting health factor %s is not above %s", m.HealthFactor.Value().StringFixed(4), o.config.MinHealthFactor),
		}
	}
	return nil
}
