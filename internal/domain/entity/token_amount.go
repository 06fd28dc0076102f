package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal scales used by the tokens this engine deals with.
const (
	StablecoinDecimals int32 = 6
	GoldTokenDecimals  int32 = 18
)

// TokenAmount is a token quantity paired with the token's decimal scale.
// Amounts with different scales are never combined without an explicit Rescale.
type TokenAmount struct {
	Value    decimal.Decimal
	Decimals int32
}

// NewTokenAmount creates a TokenAmount from a human-readable value.
func NewTokenAmount(value decimal.Decimal, decimals int32) TokenAmount {
	return TokenAmount{Value: value, Decimals: decimals}
}

// ZeroAmount returns a zero amount at the given scale.
func ZeroAmount(decimals int32) TokenAmount {
	return TokenAmount{Value: decimal.Zero, Decimals: decimals}
}

// IsZero reports whether the amount is zero.
func (a TokenAmount) IsZero() bool {
	return a.Value.IsZero()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a TokenAmount) IsPositive() bool {
	return a.Value.IsPositive()
}

// Add returns a+b. Both amounts must share the same scale.
func (a TokenAmount) Add(b TokenAmount) (TokenAmount, error) {
	if a.Decimals != b.Decimals {
		return TokenAmount{}, fmt.Errorf("cannot add amounts with %d and %d decimals", a.Decimals, b.Decimals)
	}
	return TokenAmount{Value: a.Value.Add(b.Value), Decimals: a.Decimals}, nil
}

// Sub returns a-b. Both amounts must share the same scale.
func (a TokenAmount) Sub(b TokenAmount) (TokenAmount, error) {
	if a.Decimals != b.Decimals {
		return TokenAmount{}, fmt.Errorf("cannot subtract amounts with %d and %d decimals", a.Decimals, b.Decimals)
	}
	return TokenAmount{Value: a.Value.Sub(b.Value), Decimals: a.Decimals}, nil
}

// Cmp compares two amounts of the same scale.
func (a TokenAmount) Cmp(b TokenAmount) (int, error) {
	if a.Decimals != b.Decimals {
		return 0, fmt.Errorf("cannot compare amounts with %d and %d decimals", a.Decimals, b.Decimals)
	}
	return a.Value.Cmp(b.Value), nil
}

// Rescale converts the amount to a different decimal scale. Digits beyond the
// target precision are truncated toward zero.
func (a TokenAmount) Rescale(decimals int32) TokenAmount {
	return TokenAmount{Value: a.Value.Truncate(decimals), Decimals: decimals}
}

// String renders the value followed by its scale, e.g. "100 (6dp)".
func (a TokenAmount) String() string {
	return fmt.Sprintf("%s (%ddp)", a.Value.String(), a.Decimals)
}
