// Package balance_reader reads ERC-20 balances and allowances through eth_call.
package balance_reader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/abicodec"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/ethereum/go-ethereum/common"
)

// Compile-time check that Service implements outbound.BalanceReader.
var _ outbound.BalanceReader = (*Service)(nil)

// TokenSpec names a token and its decimal scale.
type TokenSpec struct {
	Address  common.Address
	Decimals int32
}

// ServiceConfig holds configuration for the balance reader.
type ServiceConfig struct {
	Logger *slog.Logger
}

// Service reads token state. It holds no mutable state.
type Service struct {
	caller outbound.ContractCaller
	logger *slog.Logger
}

// NewService creates a balance reader over caller.
func NewService(config ServiceConfig, caller outbound.ContractCaller) (*Service, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		caller: caller,
		logger: logger.With("component", "balance-reader"),
	}, nil
}

// BalanceOf returns owner's balance of token scaled by decimals.
func (s *Service) BalanceOf(ctx context.Context, token common.Address, decimals int32, owner common.Address) (entity.TokenAmount, error) {
	data, err := abicodec.EncodeCall(abicodec.SelectorBalanceOf, abicodec.Address(owner))
	if err != nil {
		return entity.TokenAmount{}, fmt.Errorf("encoding balanceOf: %w", err)
	}
	return s.readAmount(ctx, "balanceOf", token, data, decimals)
}

// BalancesOf reads the balance of every token in order. Any failure fails
// the whole batch.
func (s *Service) BalancesOf(ctx context.Context, tokens []TokenSpec, owner common.Address) ([]entity.TokenAmount, error) {
	out := make([]entity.TokenAmount, 0, len(tokens))
	for _, tok := range tokens {
		amount, err := s.BalanceOf(ctx, tok.Address, tok.Decimals, owner)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", tok.Address.Hex(), err)
		}
		out = append(out, amount)
	}
	return out, nil
}

// Allowance returns how much of token spender may pull from owner.
func (s *Service) Allowance(ctx context.Context, token common.Address, decimals int32, owner, spender common.Address) (entity.TokenAmount, error) {
	data, err := abicodec.EncodeCall(abicodec.SelectorAllowance, abicodec.Address(owner), abicodec.Address(spender))
	if err != nil {
		return entity.TokenAmount{}, fmt.Errorf("encoding allowance: %w", err)
	}
	return s.readAmount(ctx, "allowance", token, data, decimals)
}

func (s *Service) readAmount(ctx context.Context, fn string, token common.Address, data string, decimals int32) (entity.TokenAmount, error) {
	result, err := s.caller.EthCall(ctx, token, data, nil)
	if err != nil {
		return entity.TokenAmount{}, fmt.Errorf("calling %s on %s: %w", fn, token.Hex(), err)
	}

	raw, err := abicodec.DecodeUint(result, 0)
	if err != nil {
		s.logger.Error("undecodable token response",
			"function", fn,
			"token", token.Hex(),
			"response", result,
			"error", err,
		)
		return entity.TokenAmount{}, fmt.Errorf("decoding %s: %w", fn, err)
	}

	return abicodec.ToTokenAmount(raw, decimals), nil
}
