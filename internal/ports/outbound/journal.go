package outbound

import (
	"context"
	"math/big"
	"time"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// JournalStep names the on-chain step a journal entry records.
type JournalStep string

const (
	StepApprove JournalStep = "approve"
	StepOperate JournalStep = "operate"
)

// JournalEntry records one submitted transaction of an orchestrated action.
type JournalEntry struct {
	ActionID    uuid.UUID
	Operation   entity.OperationKind
	Step        JournalStep
	Owner       common.Address
	Vault       common.Address
	NftID       *big.Int
	TxHash      common.Hash
	Succeeded   bool
	SubmittedAt time.Time
}

// TransactionJournal is an append-only log of submitted transactions.
type TransactionJournal interface {
	Record(ctx context.Context, entry JournalEntry) error
	ListByAction(ctx context.Context, actionID uuid.UUID) ([]JournalEntry, error)
}
