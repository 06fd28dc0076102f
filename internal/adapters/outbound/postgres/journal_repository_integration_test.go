//go:build integration

package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

func setupJournal(t *testing.T) *JournalRepository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:17",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := OpenPool(ctx, DefaultDBConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo, err := NewJournalRepository(pool, nil)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "schema creation is idempotent")
	return repo
}

func TestJournalRepository_RecordAndList(t *testing.T) {
	repo := setupJournal(t)
	ctx := context.Background()

	action := uuid.New()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	hugeID, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	entries := []outbound.JournalEntry{
		{ActionID: action, Operation: entity.OpBorrow, Step: outbound.StepApprove, Owner: owner, Vault: vault,
			NftID: big.NewInt(0), TxHash: common.HexToHash("0x01"), Succeeded: true, SubmittedAt: at},
		{ActionID: action, Operation: entity.OpBorrow, Step: outbound.StepOperate, Owner: owner, Vault: vault,
			NftID: hugeID, TxHash: common.HexToHash("0x02"), Succeeded: false, SubmittedAt: at.Add(time.Second)},
		{ActionID: uuid.New(), Operation: entity.OpRepay, Step: outbound.StepOperate, Owner: owner, Vault: vault,
			NftID: big.NewInt(7), TxHash: common.HexToHash("0x03"), Succeeded: true, SubmittedAt: at},
	}
	for _, e := range entries {
		require.NoError(t, repo.Record(ctx, e))
	}
	require.NoError(t, repo.Record(ctx, entries[0]), "duplicate tx hash is ignored")

	got, err := repo.ListByAction(ctx, action)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, outbound.StepApprove, got[0].Step)
	assert.Equal(t, owner, got[0].Owner)
	assert.Equal(t, vault, got[0].Vault)
	assert.True(t, got[0].Succeeded)
	assert.True(t, got[0].SubmittedAt.Equal(at))

	assert.Equal(t, outbound.StepOperate, got[1].Step)
	assert.Equal(t, 0, hugeID.Cmp(got[1].NftID), "uint256 ids survive the round trip")
	assert.False(t, got[1].Succeeded)
	assert.Equal(t, common.HexToHash("0x02"), got[1].TxHash)

	none, err := repo.ListByAction(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
