package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

// MockContractCaller implements outbound.ContractCaller for testing.
type MockContractCaller struct {
	mu        sync.Mutex
	EthCallFn func(ctx context.Context, to common.Address, data string, from *common.Address) (string, error)
	Calls     []string
}

func (m *MockContractCaller) EthCall(ctx context.Context, to common.Address, data string, from *common.Address) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, data)
	m.mu.Unlock()
	if m.EthCallFn != nil {
		return m.EthCallFn(ctx, to, data, from)
	}
	return "", errors.New("EthCall not mocked")
}

// CallCount returns the number of EthCall invocations.
func (m *MockContractCaller) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockPriceOracle implements outbound.PriceOracle for testing.
type MockPriceOracle struct {
	mu             sync.Mutex
	CurrentPriceFn func(ctx context.Context, token common.Address) (decimal.Decimal, error)
	Prices         map[common.Address]decimal.Decimal
	CallCount      int
}

func (m *MockPriceOracle) CurrentPrice(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()
	if m.CurrentPriceFn != nil {
		return m.CurrentPriceFn(ctx, token)
	}
	if p, ok := m.Prices[token]; ok {
		return p, nil
	}
	return decimal.Zero, errors.New("CurrentPrice not mocked")
}

// MockVaultConfigReader implements outbound.VaultConfigReader for testing.
type MockVaultConfigReader struct {
	mu            sync.Mutex
	FetchConfigFn func(ctx context.Context, vault common.Address) (entity.VaultConfig, error)
	CallCount     int
}

func (m *MockVaultConfigReader) FetchConfig(ctx context.Context, vault common.Address) (entity.VaultConfig, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()
	if m.FetchConfigFn != nil {
		return m.FetchConfigFn(ctx, vault)
	}
	return entity.VaultConfig{}, errors.New("FetchConfig not mocked")
}

// MockBalanceReader implements outbound.BalanceReader for testing.
type MockBalanceReader struct {
	BalanceOfFn func(ctx context.Context, token common.Address, decimals int32, owner common.Address) (entity.TokenAmount, error)
	AllowanceFn func(ctx context.Context, token common.Address, decimals int32, owner, spender common.Address) (entity.TokenAmount, error)
}

func (m *MockBalanceReader) BalanceOf(ctx context.Context, token common.Address, decimals int32, owner common.Address) (entity.TokenAmount, error) {
	if m.BalanceOfFn != nil {
		return m.BalanceOfFn(ctx, token, decimals, owner)
	}
	return entity.TokenAmount{}, errors.New("BalanceOf not mocked")
}

func (m *MockBalanceReader) Allowance(ctx context.Context, token common.Address, decimals int32, owner, spender common.Address) (entity.TokenAmount, error) {
	if m.AllowanceFn != nil {
		return m.AllowanceFn(ctx, token, decimals, owner, spender)
	}
	return entity.TokenAmount{}, errors.New("Allowance not mocked")
}

// MockPositionReader implements outbound.PositionReader for testing.
type MockPositionReader struct {
	FetchPositionFn func(ctx context.Context, owner, vault common.Address, nftID *big.Int) (*entity.Position, error)
}

func (m *MockPositionReader) FetchPosition(ctx context.Context, owner, vault common.Address, nftID *big.Int) (*entity.Position, error) {
	if m.FetchPositionFn != nil {
		return m.FetchPositionFn(ctx, owner, vault, nftID)
	}
	return nil, errors.New("FetchPosition not mocked")
}

// MockSigner implements outbound.Signer for testing. Without SignAndSubmitFn
// it returns sequential hashes.
type MockSigner struct {
	mu              sync.Mutex
	SignAndSubmitFn func(ctx context.Context, tx outbound.TxRequest) (common.Hash, error)
	Submitted       []outbound.TxRequest
}

func (m *MockSigner) SignAndSubmit(ctx context.Context, tx outbound.TxRequest) (common.Hash, error) {
	m.mu.Lock()
	m.Submitted = append(m.Submitted, tx)
	n := len(m.Submitted)
	m.mu.Unlock()
	if m.SignAndSubmitFn != nil {
		return m.SignAndSubmitFn(ctx, tx)
	}
	return common.BigToHash(big.NewInt(int64(n))), nil
}

// Transactions returns a copy of the submitted transactions.
func (m *MockSigner) Transactions() []outbound.TxRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbound.TxRequest(nil), m.Submitted...)
}

// MockReceiptFetcher implements outbound.ReceiptFetcher for testing. Without
// TransactionReceiptFn every hash is reported mined and successful.
type MockReceiptFetcher struct {
	TransactionReceiptFn func(ctx context.Context, hash common.Hash) (*outbound.Receipt, error)
}

func (m *MockReceiptFetcher) TransactionReceipt(ctx context.Context, hash common.Hash) (*outbound.Receipt, error) {
	if m.TransactionReceiptFn != nil {
		return m.TransactionReceiptFn(ctx, hash)
	}
	return &outbound.Receipt{TxHash: hash, Status: outbound.ReceiptStatusSuccess, BlockNumber: 1}, nil
}

// MockTokenRegistry implements outbound.TokenRegistry for testing.
type MockTokenRegistry map[common.Address]int32

func (m MockTokenRegistry) Decimals(token common.Address) (int32, error) {
	d, ok := m[token]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return d, nil
}

// MemoryJournal implements outbound.TransactionJournal in memory.
type MemoryJournal struct {
	mu      sync.Mutex
	Entries []outbound.JournalEntry
	Err     error
}

func (m *MemoryJournal) Record(_ context.Context, entry outbound.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MemoryJournal) ListByAction(_ context.Context, actionID uuid.UUID) ([]outbound.JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []outbound.JournalEntry
	for _, e := range m.Entries {
		if e.ActionID == actionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// MockMetricsRecorder implements outbound.MetricsRecorder for testing.
type MockMetricsRecorder struct {
	mu          sync.Mutex
	Transitions []entity.TransactionPhase
	Fetches     int
}

func (m *MockMetricsRecorder) RecordTransition(_ context.Context, _ entity.OperationKind, phase entity.TransactionPhase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions = append(m.Transitions, phase)
}

func (m *MockMetricsRecorder) RecordPositionsFetched(_ context.Context, _ int, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches++
}

var (
	_ outbound.ContractCaller     = (*MockContractCaller)(nil)
	_ outbound.PriceOracle        = (*MockPriceOracle)(nil)
	_ outbound.VaultConfigReader  = (*MockVaultConfigReader)(nil)
	_ outbound.BalanceReader      = (*MockBalanceReader)(nil)
	_ outbound.PositionReader     = (*MockPositionReader)(nil)
	_ outbound.Signer             = (*MockSigner)(nil)
	_ outbound.ReceiptFetcher     = (*MockReceiptFetcher)(nil)
	_ outbound.TokenRegistry      = MockTokenRegistry(nil)
	_ outbound.TransactionJournal = (*MemoryJournal)(nil)
	_ outbound.MetricsRecorder    = (*MockMetricsRecorder)(nil)
)
