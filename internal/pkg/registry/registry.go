// Package registry loads the static description of the chain the engine
// talks to: the resolver contract, the tokens it prices and the vaults it
// knows by name.
package registry

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// DefaultResolver is the vault resolver used when the file does not name one.
const DefaultResolver = "0x394Ce45678e0019c0045194a561E2bEd0FCc6Cf0"

// maxDecimals bounds token scales; 10^77 is the largest power of ten below 2^256.
const maxDecimals = 77

// Registry is the parsed registry file.
type Registry struct {
	ChainID  int64   `yaml:"chain_id"`
	Resolver string  `yaml:"resolver"`
	Tokens   []Token `yaml:"tokens"`
	Vaults   []Vault `yaml:"vaults"`

	resolver common.Address
	byAddr   map[common.Address]Token
	bySymbol map[string]Token
}

// Token describes an ERC-20 token.
type Token struct {
	Symbol      string `yaml:"symbol"`
	Address     string `yaml:"address"`
	Decimals    int32  `yaml:"decimals"`
	CoinGeckoID string `yaml:"coingecko_id"`
}

// Vault names a vault and the symbols of its two tokens.
type Vault struct {
	Name       string `yaml:"name"`
	Address    string `yaml:"address"`
	Collateral string `yaml:"collateral"`
	Debt       string `yaml:"debt"`
}

// Load reads and validates the registry at path.
func Load(path string) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes and validates a registry document.
func Parse(r io.Reader) (*Registry, error) {
	var reg Registry
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate normalises the document and builds the lookup indexes.
func (r *Registry) Validate() error {
	r.Resolver = strings.TrimSpace(r.Resolver)
	if r.Resolver == "" {
		r.Resolver = DefaultResolver
	}
	if !common.IsHexAddress(r.Resolver) {
		return fmt.Errorf("resolver: invalid address %q", r.Resolver)
	}
	r.resolver = common.HexToAddress(r.Resolver)

	r.byAddr = make(map[common.Address]Token, len(r.Tokens))
	r.bySymbol = make(map[string]Token, len(r.Tokens))
	for i := range r.Tokens {
		tok := &r.Tokens[i]
		tok.Symbol = strings.TrimSpace(tok.Symbol)
		if tok.Symbol == "" {
			return fmt.Errorf("tokens[%d]: symbol required", i)
		}
		if !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("token %s: invalid address %q", tok.Symbol, tok.Address)
		}
		if tok.Decimals < 0 || tok.Decimals > maxDecimals {
			return fmt.Errorf("token %s: decimals %d out of range", tok.Symbol, tok.Decimals)
		}
		addr := common.HexToAddress(tok.Address)
		if _, dup := r.byAddr[addr]; dup {
			return fmt.Errorf("token %s: duplicate address %s", tok.Symbol, addr.Hex())
		}
		key := strings.ToUpper(tok.Symbol)
		if _, dup := r.bySymbol[key]; dup {
			return fmt.Errorf("token %s: duplicate symbol", tok.Symbol)
		}
		r.byAddr[addr] = *tok
		r.bySymbol[key] = *tok
	}

	for i, v := range r.Vaults {
		if !common.IsHexAddress(v.Address) {
			return fmt.Errorf("vaults[%d] %s: invalid address %q", i, v.Name, v.Address)
		}
		for _, sym := range []string{v.Collateral, v.Debt} {
			if _, ok := r.bySymbol[strings.ToUpper(sym)]; !ok {
				return fmt.Errorf("vault %s: unknown token %q", v.Name, sym)
			}
		}
	}
	return nil
}

// ResolverAddress returns the vault resolver contract.
func (r *Registry) ResolverAddress() common.Address {
	return r.resolver
}

// Token looks a token up by address.
func (r *Registry) Token(addr common.Address) (Token, bool) {
	tok, ok := r.byAddr[addr]
	return tok, ok
}

// TokenBySymbol looks a token up by symbol, case-insensitively.
func (r *Registry) TokenBySymbol(symbol string) (Token, bool) {
	tok, ok := r.bySymbol[strings.ToUpper(symbol)]
	return tok, ok
}

// Decimals returns the decimal scale of the token at addr.
func (r *Registry) Decimals(addr common.Address) (int32, error) {
	tok, ok := r.byAddr[addr]
	if !ok {
		return 0, fmt.Errorf("token %s not in registry", addr.Hex())
	}
	return tok.Decimals, nil
}

// AssetIDs maps token addresses to CoinGecko ids, skipping tokens without one.
func (r *Registry) AssetIDs() map[common.Address]string {
	ids := make(map[common.Address]string, len(r.byAddr))
	for addr, tok := range r.byAddr {
		if tok.CoinGeckoID != "" {
			ids[addr] = tok.CoinGeckoID
		}
	}
	return ids
}

// TokenAddress returns the parsed token address.
func (t Token) TokenAddress() common.Address {
	return common.HexToAddress(t.Address)
}

// VaultAddress returns the parsed vault address.
func (v Vault) VaultAddress() common.Address {
	return common.HexToAddress(v.Address)
}
