package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRegistry = `
chain_id: 1
tokens:
  - symbol: USDC
    address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    decimals: 6
    coingecko_id: usd-coin
  - symbol: PAXG
    address: "0x45804880De22913dAFE09f4980848ECE6EcbAf78"
    decimals: 18
    coingecko_id: pax-gold
  - symbol: TEST
    address: "0x0000000000000000000000000000000000000abc"
    decimals: 8
vaults:
  - name: paxg-usdc
    address: "0x1111111111111111111111111111111111111111"
    collateral: paxg
    debt: USDC
`

func TestParse(t *testing.T) {
	reg, err := Parse(strings.NewReader(sampleRegistry))
	require.NoError(t, err)

	assert.Equal(t, int64(1), reg.ChainID)
	assert.Equal(t, common.HexToAddress(DefaultResolver), reg.ResolverAddress())

	usdc := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	d, err := reg.Decimals(usdc)
	require.NoError(t, err)
	assert.Equal(t, int32(6), d)

	tok, ok := reg.TokenBySymbol("paxg")
	require.True(t, ok)
	assert.Equal(t, int32(18), tok.Decimals)

	_, err = reg.Decimals(common.HexToAddress("0x01"))
	assert.Error(t, err)

	ids := reg.AssetIDs()
	assert.Len(t, ids, 2)
	assert.Equal(t, "usd-coin", ids[usdc])

	require.Len(t, reg.Vaults, 1)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), reg.Vaults[0].VaultAddress())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad resolver",
			doc:  "resolver: nope\n",
			want: "resolver",
		},
		{
			name: "bad token address",
			doc:  "tokens:\n  - symbol: X\n    address: 0x12\n    decimals: 6\n",
			want: "invalid address",
		},
		{
			name: "decimals out of range",
			doc:  "tokens:\n  - symbol: X\n    address: \"0x0000000000000000000000000000000000000001\"\n    decimals: 99\n",
			want: "out of range",
		},
		{
			name: "duplicate symbol",
			doc: "tokens:\n" +
				"  - symbol: X\n    address: \"0x0000000000000000000000000000000000000001\"\n    decimals: 6\n" +
				"  - symbol: x\n    address: \"0x0000000000000000000000000000000000000002\"\n    decimals: 6\n",
			want: "duplicate symbol",
		},
		{
			name: "unknown vault token",
			doc:  "vaults:\n  - name: v\n    address: \"0x0000000000000000000000000000000000000001\"\n    collateral: A\n    debt: B\n",
			want: "unknown token",
		},
		{
			name: "unknown field",
			doc:  "chainid: 1\n",
			want: "decode registry",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRegistry), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, reg.Tokens, 3)

	_, err = Load("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
