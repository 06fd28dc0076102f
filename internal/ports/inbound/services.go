// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/ethereum/go-ethereum/common"
)

// PositionQuery lists the vault positions owned by an address.
type PositionQuery interface {
	FetchPositions(ctx context.Context, owner common.Address) ([]entity.Position, error)
}

// VaultConfigQuery reads a vault's risk parameters.
type VaultConfigQuery interface {
	FetchConfig(ctx context.Context, vault common.Address) (entity.VaultConfig, error)
}

// HealthChecker reports whether the service can reach its dependencies.
type HealthChecker interface {
	// Check returns nil when the chain node answers.
	Check(ctx context.Context) error
}
