package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenAmount_ArithmeticRequiresSameScale(t *testing.T) {
	usdc := NewTokenAmount(decimal.RequireFromString("100.5"), StablecoinDecimals)
	more := NewTokenAmount(decimal.RequireFromString("0.5"), StablecoinDecimals)
	gold := NewTokenAmount(decimal.RequireFromString("1"), GoldTokenDecimals)

	sum, err := usdc.Add(more)
	require.NoError(t, err)
	assert.Equal(t, "101", sum.Value.String())
	assert.Equal(t, StablecoinDecimals, sum.Decimals)

	diff, err := usdc.Sub(more)
	require.NoError(t, err)
	assert.Equal(t, "100", diff.Value.String())

	_, err = usdc.Add(gold)
	assert.Error(t, err)
	_, err = usdc.Sub(gold)
	assert.Error(t, err)
	_, err = usdc.Cmp(gold)
	assert.Error(t, err)

	cmp, err := usdc.Cmp(more)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)
}

func TestTokenAmount_Rescale(t *testing.T) {
	a := NewTokenAmount(decimal.RequireFromString("1.123456789"), GoldTokenDecimals)

	got := a.Rescale(StablecoinDecimals)

	assert.Equal(t, StablecoinDecimals, got.Decimals)
	assert.Equal(t, "1.123456", got.Value.String())
}

func TestTokenAmount_Predicates(t *testing.T) {
	assert.True(t, ZeroAmount(6).IsZero())
	assert.False(t, ZeroAmount(6).IsPositive())
	assert.True(t, NewTokenAmount(decimal.NewFromInt(1), 6).IsPositive())
	assert.Equal(t, "1 (6dp)", NewTokenAmount(decimal.NewFromInt(1), 6).String())
}
