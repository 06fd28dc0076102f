package main

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/coingecko"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/vault-engine/internal/pkg/registry"
	"github.com/archon-research/stl/vault-engine/internal/services/balance_reader"
	"github.com/archon-research/stl/vault-engine/internal/services/position_aggregator"
	"github.com/archon-research/stl/vault-engine/internal/services/pricing"
	"github.com/archon-research/stl/vault-engine/internal/services/vault_config"
)

// readStack holds the read-side services every command builds on.
type readStack struct {
	logger    *slog.Logger
	registry  *registry.Registry
	rpc       *ethrpc.Client
	balances  *balance_reader.Service
	configs   *vault_config.Service
	prices    *pricing.Service
	positions *position_aggregator.Service

	// oracle is the uncached price source for risk checks ahead of a write.
	oracle *coingecko.Client
}

func newReadStack(c *cli.Context) (*readStack, error) {
	logger := loggerFrom(c)

	reg, err := registry.Load(c.String("registry"))
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	rpc, err := ethrpc.NewClient(ethrpc.ClientConfig{
		PrimaryURL:  c.String("rpc-url"),
		FallbackURL: c.String("rpc-fallback-url"),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rpc client: %w", err)
	}

	balances, err := balance_reader.NewService(balance_reader.ServiceConfig{Logger: logger}, rpc)
	if err != nil {
		return nil, fmt.Errorf("creating balance reader: %w", err)
	}

	configs, err := vault_config.NewService(vault_config.ServiceConfig{
		Resolver: reg.ResolverAddress(),
		Logger:   logger,
	}, rpc)
	if err != nil {
		return nil, fmt.Errorf("creating vault config reader: %w", err)
	}

	oracle, err := coingecko.NewClient(coingecko.ClientConfig{
		APIKey:   c.String("coingecko-api-key"),
		AssetIDs: reg.AssetIDs(),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating coingecko client: %w", err)
	}

	prices, err := pricing.NewService(pricing.ServiceConfig{Logger: logger}, oracle, memory.NewPriceCache())
	if err != nil {
		return nil, fmt.Errorf("creating pricing service: %w", err)
	}

	positions, err := position_aggregator.NewService(position_aggregator.ServiceConfig{
		Resolver: reg.ResolverAddress(),
		Logger:   logger,
	}, rpc, configs, prices, reg)
	if err != nil {
		return nil, fmt.Errorf("creating position aggregator: %w", err)
	}

	return &readStack{
		logger:    logger,
		registry:  reg,
		rpc:       rpc,
		balances:  balances,
		configs:   configs,
		prices:    prices,
		positions: positions,
		oracle:    oracle,
	}, nil
}

// resolveToken accepts a registry symbol or a hex address.
func (s *readStack) resolveToken(ref string) (common.Address, int32, error) {
	if tok, ok := s.registry.TokenBySymbol(ref); ok {
		return tok.TokenAddress(), tok.Decimals, nil
	}
	addr, err := parseAddress("token", ref)
	if err != nil {
		return common.Address{}, 0, err
	}
	decimals, err := s.registry.Decimals(addr)
	if err != nil {
		return common.Address{}, 0, err
	}
	return addr, decimals, nil
}

// resolveVault accepts a registry vault name or a hex address.
func (s *readStack) resolveVault(ref string) (common.Address, error) {
	for _, v := range s.registry.Vaults {
		if v.Name == ref {
			return v.VaultAddress(), nil
		}
	}
	return parseAddress("vault", ref)
}

func parseAddress(what, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", what, s)
	}
	return common.HexToAddress(s), nil
}

func argAddress(c *cli.Context, what string) (common.Address, error) {
	if c.NArg() != 1 {
		return common.Address{}, fmt.Errorf("expected exactly one %s address argument", what)
	}
	return parseAddress(what, c.Args().First())
}
