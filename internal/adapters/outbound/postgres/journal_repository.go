package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.TransactionJournal = (*JournalRepository)(nil)

const journalSchema = `
CREATE TABLE IF NOT EXISTS vault_tx_journal (
	id           BIGSERIAL PRIMARY KEY,
	action_id    UUID           NOT NULL,
	operation    TEXT           NOT NULL,
	step         TEXT           NOT NULL,
	owner        TEXT           NOT NULL,
	vault        TEXT           NOT NULL,
	nft_id       NUMERIC(78, 0) NOT NULL,
	tx_hash      TEXT           NOT NULL UNIQUE,
	succeeded    BOOLEAN        NOT NULL,
	submitted_at TIMESTAMPTZ    NOT NULL
);
CREATE INDEX IF NOT EXISTS vault_tx_journal_action_idx ON vault_tx_journal (action_id);
CREATE INDEX IF NOT EXISTS vault_tx_journal_owner_idx ON vault_tx_journal (owner, submitted_at);
`

// JournalRepository is a PostgreSQL implementation of the
// outbound.TransactionJournal port. Rows are never updated or deleted.
type JournalRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewJournalRepository creates a new PostgreSQL journal.
func NewJournalRepository(pool *pgxpool.Pool, logger *slog.Logger) (*JournalRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalRepository{
		pool:   pool,
		logger: logger.With("component", "postgres-journal"),
	}, nil
}

// EnsureSchema creates the journal table and indexes if missing.
func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, journalSchema); err != nil {
		return fmt.Errorf("creating journal schema: %w", err)
	}
	return nil
}

// Record appends one entry. Re-recording a tx hash is a no-op.
func (r *JournalRepository) Record(ctx context.Context, entry outbound.JournalEntry) error {
	nftID := "0"
	if entry.NftID != nil {
		nftID = entry.NftID.String()
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO vault_tx_journal
			(action_id, operation, step, owner, vault, nft_id, tx_hash, succeeded, submitted_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
		ON CONFLICT (tx_hash) DO NOTHING
	`,
		entry.ActionID.String(),
		string(entry.Operation),
		string(entry.Step),
		addressKey(entry.Owner),
		addressKey(entry.Vault),
		nftID,
		entry.TxHash.Hex(),
		entry.Succeeded,
		entry.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("journal entry already recorded", "tx", entry.TxHash)
	}
	return nil
}

// ListByAction returns an action's entries in submission order.
func (r *JournalRepository) ListByAction(ctx context.Context, actionID uuid.UUID) ([]outbound.JournalEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT action_id::text, operation, step, owner, vault, nft_id::text, tx_hash, succeeded, submitted_at
		FROM vault_tx_journal
		WHERE action_id = $1::uuid
		ORDER BY id
	`, actionID.String())
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func scanJournalEntries(rows pgx.Rows) ([]outbound.JournalEntry, error) {
	var entries []outbound.JournalEntry
	for rows.Next() {
		var (
			e                         outbound.JournalEntry
			actionID, op, step        string
			owner, vault, nftID, hash string
		)
		if err := rows.Scan(&actionID, &op, &step, &owner, &vault, &nftID, &hash, &e.Succeeded, &e.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		id, err := uuid.Parse(actionID)
		if err != nil {
			return nil, fmt.Errorf("parsing action id %q: %w", actionID, err)
		}
		n, ok := new(big.Int).SetString(nftID, 10)
		if !ok {
			return nil, fmt.Errorf("parsing nft id %q", nftID)
		}

		e.ActionID = id
		e.Operation = entity.OperationKind(op)
		e.Step = outbound.JournalStep(step)
		e.Owner = common.HexToAddress(owner)
		e.Vault = common.HexToAddress(vault)
		e.NftID = n
		e.TxHash = common.HexToHash(hash)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	return entries, nil
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
