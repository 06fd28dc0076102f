// Package hexutil parses the hex quantities returned by Ethereum JSON-RPC
// nodes ("0x1b4", "0x0").
package hexutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseUint64 parses a 0x-prefixed hex quantity into a uint64. Signs,
// underscores and values wider than 64 bits are rejected.
func ParseUint64(quantity string) (uint64, error) {
	digits, ok := strings.CutPrefix(quantity, "0x")
	if !ok {
		return 0, fmt.Errorf("hex quantity %q lacks 0x prefix", quantity)
	}
	if digits == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	n, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", quantity, err)
	}
	return n, nil
}
