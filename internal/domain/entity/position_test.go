package entity

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthFactor_Comparisons(t *testing.T) {
	one := decimal.NewFromInt(1)

	inf := InfiniteHealthFactor()
	assert.True(t, inf.IsInfinite())
	assert.False(t, inf.LessThanOrEqual(decimal.NewFromInt(1_000_000)))
	assert.True(t, inf.GreaterThan(one))
	assert.Equal(t, "inf", inf.String())

	hf := FiniteHealthFactor(one)
	assert.False(t, hf.IsInfinite())
	assert.True(t, hf.LessThanOrEqual(one))
	assert.False(t, hf.GreaterThan(one))
	assert.Equal(t, "1", hf.String())
}

func TestPositionStatus_String(t *testing.T) {
	assert.Equal(t, "safe", StatusSafe.String())
	assert.Equal(t, "warning", StatusWarning.String())
	assert.Equal(t, "danger", StatusDanger.String())
	assert.Equal(t, "liquidated", StatusLiquidated.String())
	assert.Equal(t, "unknown(9)", PositionStatus(9).String())
}

func TestPosition_KeyAndJSON(t *testing.T) {
	vault := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	p := Position{
		VaultAddress:     vault,
		NftID:            big.NewInt(42),
		CollateralAmount: NewTokenAmount(decimal.RequireFromString("0.1"), GoldTokenDecimals),
		DebtAmount:       ZeroAmount(StablecoinDecimals),
		HealthFactor:     InfiniteHealthFactor(),
		Status:           StatusSafe,
	}

	assert.Equal(t, PositionKey{VaultAddress: vault, NftID: "42"}, p.Key())
	assert.False(t, p.HasDebt())

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "0.1", decoded["collateralAmount"])
	assert.Equal(t, "0", decoded["debtAmount"])
	assert.Equal(t, "inf", decoded["healthFactor"])
	assert.Equal(t, "safe", decoded["status"])
}

func TestPosition_KeyWithoutNftID(t *testing.T) {
	p := Position{}
	assert.Equal(t, "0", p.Key().NftID)
}
