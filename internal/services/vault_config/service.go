// Package vault_config reads a vault's risk parameters from the resolver
// contract.
package vault_config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/abicodec"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

// Compile-time check that Service implements outbound.VaultConfigReader.
var _ outbound.VaultConfigReader = (*Service)(nil)

// Word positions inside the entire-data tuple, relative to its base word.
const (
	wordVault = iota
	wordCollateralToken
	wordDebtToken
	wordCollateralFactor
	wordLiquidationThreshold
	wordLiquidationMaxLimit
	wordLiquidationPenalty

	tupleWords
)

// percentScale converts on-chain percentages (x100) into plain percentages.
const percentScale = 2

// ServiceConfig holds configuration for the vault config reader.
type ServiceConfig struct {
	// Resolver is the contract answering getVaultEntireData.
	Resolver common.Address

	Logger *slog.Logger
}

// Service reads vault configuration. It holds no mutable state.
type Service struct {
	resolver common.Address
	caller   outbound.ContractCaller
	logger   *slog.Logger
}

// NewService creates a vault config reader.
func NewService(config ServiceConfig, caller outbound.ContractCaller) (*Service, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if config.Resolver == (common.Address{}) {
		return nil, fmt.Errorf("resolver address is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		resolver: config.Resolver,
		caller:   caller,
		logger:   logger.With("component", "vault-config"),
	}, nil
}

// FetchConfig reads the risk parameters of vault. Out-of-range percentages
// are replaced by defaults and logged; a truncated or malformed payload is a
// DecodingError.
func (s *Service) FetchConfig(ctx context.Context, vault common.Address) (entity.VaultConfig, error) {
	data, err := abicodec.EncodeCall(abicodec.SelectorGetVaultEntireData, abicodec.Address(vault))
	if err != nil {
		return entity.VaultConfig{}, fmt.Errorf("encoding getVaultEntireData: %w", err)
	}

	result, err := s.caller.EthCall(ctx, s.resolver, data, nil)
	if err != nil {
		return entity.VaultConfig{}, fmt.Errorf("fetching config of vault %s: %w", vault.Hex(), err)
	}

	cfg, err := s.decode(vault, result)
	if err != nil {
		var decErr *entity.DecodingError
		if errors.As(err, &decErr) {
			s.logger.Error("undecodable vault config",
				"vault", vault.Hex(),
				"response", result,
				"error", err,
			)
		}
		return entity.VaultConfig{}, err
	}
	return cfg, nil
}

func (s *Service) decode(vault common.Address, result string) (entity.VaultConfig, error) {
	payload, err := abicodec.Decode(result)
	if err != nil {
		return entity.VaultConfig{}, err
	}

	base, err := payload.WordOffset(0)
	if err != nil {
		return entity.VaultConfig{}, err
	}
	if base+tupleWords > payload.Words() {
		return entity.VaultConfig{}, &entity.DecodingError{
			Reason: fmt.Sprintf("vault data truncated: need %d words from word %d, have %d", tupleWords, base, payload.Words()),
		}
	}

	reportedVault, err := payload.Address(base + wordVault)
	if err != nil {
		return entity.VaultConfig{}, err
	}
	if reportedVault != (common.Address{}) && reportedVault != vault {
		s.logger.Warn("resolver reported a different vault address",
			"requested", vault.Hex(),
			"reported", reportedVault.Hex(),
		)
	}

	collateralToken, err := payload.Address(base + wordCollateralToken)
	if err != nil {
		return entity.VaultConfig{}, err
	}
	debtToken, err := payload.Address(base + wordDebtToken)
	if err != nil {
		return entity.VaultConfig{}, err
	}

	percent := func(word int) (decimal.Decimal, error) {
		raw, err := payload.Uint(base + word)
		if err != nil {
			return decimal.Zero, err
		}
		return abicodec.ToScaledDecimal(raw, percentScale), nil
	}

	maxLTV, err := percent(wordCollateralFactor)
	if err != nil {
		return entity.VaultConfig{}, err
	}
	threshold, err := percent(wordLiquidationThreshold)
	if err != nil {
		return entity.VaultConfig{}, err
	}
	penalty, err := percent(wordLiquidationPenalty)
	if err != nil {
		return entity.VaultConfig{}, err
	}

	cfg, clamped := entity.NewVaultConfig(vault, collateralToken, debtToken, maxLTV, threshold, penalty)
	if len(clamped) > 0 {
		s.logger.Warn("vault risk parameters out of range, using defaults",
			"vault", vault.Hex(),
			"fields", clamped,
			"maxLTV", maxLTV.String(),
			"liquidationThreshold", threshold.String(),
			"liquidationPenalty", penalty.String(),
		)
	}
	return cfg, nil
}
