// Package position_aggregator lists the vault positions of an owner and
// derives their solvency metrics from current prices.
package position_aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/abicodec"
	"github.com/archon-research/stl/vault-engine/internal/ports/inbound"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/archon-research/stl/vault-engine/internal/services/risk"
)

var (
	_ inbound.PositionQuery   = (*Service)(nil)
	_ outbound.PositionReader = (*Service)(nil)
)

// recordWords is the number of words per position record:
// collateral raw, debt raw, NFT id, vault address.
const recordWords = 4

// ServiceConfig holds configuration for the position aggregator.
type ServiceConfig struct {
	// Resolver is the contract answering positionsByUser.
	Resolver common.Address

	// Thresholds classify positions. Zero value means risk.DefaultThresholds.
	Thresholds risk.Thresholds

	// Metrics is optional.
	Metrics outbound.MetricsRecorder

	Logger *slog.Logger

	// Now is the clock used for position timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Service aggregates positions. It holds no mutable state, so concurrent
// reads need no coordination.
type Service struct {
	resolver   common.Address
	thresholds risk.Thresholds
	caller     outbound.ContractCaller
	configs    outbound.VaultConfigReader
	prices     outbound.PriceOracle
	tokens     outbound.TokenRegistry
	metrics    outbound.MetricsRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a position aggregator.
func NewService(
	config ServiceConfig,
	caller outbound.ContractCaller,
	configs outbound.VaultConfigReader,
	prices outbound.PriceOracle,
	tokens outbound.TokenRegistry,
) (*Service, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller cannot be nil")
	}
	if configs == nil {
		return nil, fmt.Errorf("config reader cannot be nil")
	}
	if prices == nil {
		return nil, fmt.Errorf("price oracle cannot be nil")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token registry cannot be nil")
	}
	if config.Resolver == (common.Address{}) {
		return nil, fmt.Errorf("resolver address is required")
	}

	thresholds := config.Thresholds
	if thresholds.Liquidated.IsZero() && thresholds.Danger.IsZero() && thresholds.Warning.IsZero() {
		thresholds = risk.DefaultThresholds()
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		resolver:   config.Resolver,
		thresholds: thresholds,
		caller:     caller,
		configs:    configs,
		prices:     prices,
		tokens:     tokens,
		metrics:    config.Metrics,
		logger:     logger.With("component", "position-aggregator"),
		now:        now,
	}, nil
}

// rawPosition is one decoded positionsByUser record.
type rawPosition struct {
	collateral *big.Int
	debt       *big.Int
	nftID      *big.Int
	vault      common.Address
}

// FetchPositions returns every position of owner, including debt-free ones.
// A reverted resolver call means the owner has no positions.
func (s *Service) FetchPositions(ctx context.Context, owner common.Address) (positions []entity.Position, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordPositionsFetched(ctx, len(positions), time.Since(start), err)
		}
	}()

	raws, err := s.fetchRaw(ctx, owner)
	if err != nil {
		return nil, err
	}

	configs := make(map[common.Address]entity.VaultConfig)
	prices := make(map[common.Address]decimal.Decimal)
	refreshed := s.now()

	positions = make([]entity.Position, 0, len(raws))
	for _, raw := range raws {
		p, err := s.materialise(ctx, owner, raw, configs, prices, refreshed)
		if err != nil {
			return nil, fmt.Errorf("position %s in vault %s: %w", raw.nftID, raw.vault.Hex(), err)
		}
		positions = append(positions, p)
	}

	s.logger.Debug("fetched positions", "owner", owner.Hex(), "count", len(positions))
	return positions, nil
}

// FetchPosition returns one position of owner.
func (s *Service) FetchPosition(ctx context.Context, owner, vault common.Address, nftID *big.Int) (*entity.Position, error) {
	if nftID == nil {
		return nil, entity.ErrPositionNotFound
	}
	positions, err := s.FetchPositions(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].VaultAddress == vault && positions[i].NftID.Cmp(nftID) == 0 {
			return &positions[i], nil
		}
	}
	return nil, fmt.Errorf("nft %s in vault %s: %w", nftID, vault.Hex(), entity.ErrPositionNotFound)
}

func (s *Service) fetchRaw(ctx context.Context, owner common.Address) ([]rawPosition, error) {
	data, err := abicodec.EncodeCall(abicodec.SelectorPositionsByUser, abicodec.Address(owner))
	if err != nil {
		return nil, fmt.Errorf("encoding positionsByUser: %w", err)
	}

	result, err := s.caller.EthCall(ctx, s.resolver, data, nil)
	if err != nil {
		if entity.IsReverted(err) {
			s.logger.Debug("positionsByUser reverted, owner has no positions", "owner", owner.Hex(), "error", err)
			return nil, nil
		}
		return nil, err
	}

	raws, err := decodePositions(result)
	if err != nil {
		s.logger.Error("undecodable positionsByUser response",
			"owner", owner.Hex(),
			"response", result,
			"error", err,
		)
		return nil, err
	}
	return raws, nil
}

// decodePositions decodes the dynamic array returned by positionsByUser:
// word 0 is the array offset, followed by its length and the records.
func decodePositions(result string) ([]rawPosition, error) {
	payload, err := abicodec.Decode(result)
	if err != nil {
		return nil, err
	}
	if payload.Words() == 0 {
		return nil, &entity.DecodingError{Reason: "empty positionsByUser response"}
	}

	head, err := payload.WordOffset(0)
	if err != nil {
		return nil, err
	}
	length, err := payload.Uint(head)
	if err != nil {
		return nil, err
	}

	available := (payload.Words() - head - 1) / recordWords
	if !length.IsInt64() || length.Int64() > int64(available) {
		return nil, &entity.DecodingError{
			Reason: fmt.Sprintf("positions array claims %s records, payload holds %d", length, available),
		}
	}

	n := int(length.Int64())
	out := make([]rawPosition, n)
	for i := range n {
		base := head + 1 + i*recordWords
		if out[i].collateral, err = payload.Uint(base); err != nil {
			return nil, err
		}
		if out[i].debt, err = payload.Uint(base + 1); err != nil {
			return nil, err
		}
		if out[i].nftID, err = payload.Uint(base + 2); err != nil {
			return nil, err
		}
		if out[i].vault, err = payload.Address(base + 3); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Service) materialise(
	ctx context.Context,
	owner common.Address,
	raw rawPosition,
	configs map[common.Address]entity.VaultConfig,
	prices map[common.Address]decimal.Decimal,
	refreshed time.Time,
) (entity.Position, error) {
	cfg, ok := configs[raw.vault]
	if !ok {
		var err error
		cfg, err = s.configs.FetchConfig(ctx, raw.vault)
		if err != nil {
			return entity.Position{}, fmt.Errorf("fetching vault config: %w", err)
		}
		configs[raw.vault] = cfg
	}

	collateralDecimals, err := s.tokens.Decimals(cfg.CollateralToken)
	if err != nil {
		return entity.Position{}, fmt.Errorf("collateral token: %w", err)
	}
	debtDecimals, err := s.tokens.Decimals(cfg.DebtToken)
	if err != nil {
		return entity.Position{}, fmt.Errorf("debt token: %w", err)
	}

	price, ok := prices[cfg.CollateralToken]
	if !ok {
		price, err = s.prices.CurrentPrice(ctx, cfg.CollateralToken)
		if err != nil {
			return entity.Position{}, fmt.Errorf("pricing collateral %s: %w", cfg.CollateralToken.Hex(), err)
		}
		prices[cfg.CollateralToken] = price
	}

	p := entity.Position{
		VaultAddress:     raw.vault,
		NftID:            raw.nftID,
		Owner:            owner,
		CollateralAmount: abicodec.ToTokenAmount(raw.collateral, collateralDecimals),
		DebtAmount:       abicodec.ToTokenAmount(raw.debt, debtDecimals),
		CreatedAt:        refreshed,
		LastRefreshedAt:  refreshed,
	}

	risk.EvaluateWith(risk.Inputs{
		CollateralAmount: p.CollateralAmount.Value,
		DebtAmount:       p.DebtAmount.Value,
		Price:            price,
		Config:           cfg,
	}, s.thresholds).Apply(&p)

	return p, nil
}
