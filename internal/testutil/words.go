package testutil

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Word renders v as a 64-digit hex word.
func Word(v *big.Int) string {
	return fmt.Sprintf("%064x", v)
}

// WordInt renders a small integer as a hex word.
func WordInt(v int64) string {
	return Word(big.NewInt(v))
}

// WordAddress renders a left-padded address word.
func WordAddress(a common.Address) string {
	return strings.Repeat("0", 24) + strings.ToLower(a.Hex()[2:])
}

// Words joins hex words into a 0x-prefixed payload.
func Words(words ...string) string {
	return "0x" + strings.Join(words, "")
}

// Units returns v * 10^decimals.
func Units(v int64, decimals int) *big.Int {
	exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(v), exp)
}
