package outbound

import (
	"context"
	"math/big"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader reads ERC-20 state for an owner.
type BalanceReader interface {
	BalanceOf(ctx context.Context, token common.Address, decimals int32, owner common.Address) (entity.TokenAmount, error)
	Allowance(ctx context.Context, token common.Address, decimals int32, owner, spender common.Address) (entity.TokenAmount, error)
}

// VaultConfigReader reads a vault's risk parameters.
type VaultConfigReader interface {
	FetchConfig(ctx context.Context, vault common.Address) (entity.VaultConfig, error)
}

// PositionReader reads the positions of an owner.
type PositionReader interface {
	FetchPosition(ctx context.Context, owner, vault common.Address, nftID *big.Int) (*entity.Position, error)
}

// TokenRegistry resolves token decimal scales.
type TokenRegistry interface {
	Decimals(token common.Address) (int32, error)
}
