// Package vault_tx drives multi-step vault transactions: an optional ERC-20
// approval followed by one or two operate calls, with at most one action in
// flight per Orchestrator.
package vault_tx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/abicodec"
	"github.com/archon-research/stl/vault-engine/internal/pkg/retry"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

// transferTopic is the ERC-721 Transfer event signature hash.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var errPending = errors.New("transaction receipt not yet available")

// Orchestrator serialises vault actions for one client. Its state is readable
// at any time; a second action started while one runs fails with ErrBusy.
type Orchestrator struct {
	config Config
	deps   Deps
	logger *slog.Logger

	guard sync.Mutex

	mu    sync.RWMutex
	state entity.TransactionState
}

// New creates an Orchestrator.
func New(config Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Signer == nil:
		return nil, fmt.Errorf("signer is required")
	case deps.Receipts == nil:
		return nil, fmt.Errorf("receipt fetcher is required")
	case deps.Balances == nil:
		return nil, fmt.Errorf("balance reader is required")
	case deps.Configs == nil:
		return nil, fmt.Errorf("vault config reader is required")
	case deps.Positions == nil:
		return nil, fmt.Errorf("position reader is required")
	case deps.Prices == nil:
		return nil, fmt.Errorf("price oracle is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token registry is required")
	}

	applyDefaults(&config, ConfigDefaults())
	if config.ReceiptPollAttempts < 1 {
		return nil, fmt.Errorf("receipt poll attempts must be at least 1, got %d", config.ReceiptPollAttempts)
	}
	if config.MinHealthFactor.IsNegative() {
		return nil, fmt.Errorf("min health factor must not be negative, got %s", config.MinHealthFactor)
	}

	return &Orchestrator{
		config: config,
		deps:   deps,
		logger: config.Logger.With("component", "vault-tx"),
		state:  entity.Idle(),
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() entity.TransactionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Borrow opens a position or draws more debt against an existing one.
func (o *Orchestrator) Borrow(ctx context.Context, req entity.BorrowRequest) (entity.TransactionState, error) {
	return o.run(ctx, entity.OpBorrow, req)
}

// AddCollateral deposits collateral into a position without borrowing.
func (o *Orchestrator) AddCollateral(ctx context.Context, req entity.BorrowRequest) (entity.TransactionState, error) {
	return o.run(ctx, entity.OpAddCollateral, req)
}

// Repay pays back part or all of a position's debt.
func (o *Orchestrator) Repay(ctx context.Context, req entity.BorrowRequest) (entity.TransactionState, error) {
	return o.run(ctx, entity.OpRepay, req)
}

// Withdraw takes collateral out of a position.
func (o *Orchestrator) Withdraw(ctx context.Context, req entity.BorrowRequest) (entity.TransactionState, error) {
	return o.run(ctx, entity.OpWithdraw, req)
}

// Close repays all debt and withdraws all collateral. Amounts in req are
// ignored; the position's current amounts are used.
func (o *Orchestrator) Close(ctx context.Context, req entity.BorrowRequest) (entity.TransactionState, error) {
	return o.run(ctx, entity.OpClose, req)
}

// run executes one action to a terminal state. The returned error is the
// failure carried by the terminal state, or ErrBusy.
func (o *Orchestrator) run(ctx context.Context, op entity.OperationKind, req entity.BorrowRequest) (entity.TransactionState, error) {
	if !o.guard.TryLock() {
		return o.State(), ErrBusy
	}
	defer o.guard.Unlock()

	actionID := uuid.New()
	logger := o.logger.With("action", actionID, "operation", op, "vault", req.VaultAddress, "owner", req.UserAddress)
	logger.Info("starting vault action", "nftId", req.NftID)

	o.setState(ctx, logger, op, entity.InPhase(entity.PhaseCheckingApproval))

	p, err := o.buildPlan(ctx, op, req)
	if err != nil {
		return o.fail(ctx, logger, op, err)
	}

	a := &action{id: actionID, op: op, plan: p, logger: logger}
	var repayTx common.Hash
	for i, l := range p.legs {
		txHash, err := o.executeLeg(ctx, a, l)
		if err != nil {
			if op == entity.OpClose && i > 0 {
				err = &PartialCloseError{RepayTx: repayTx, Err: err}
			}
			return o.fail(ctx, logger, op, err)
		}
		if l.op == entity.OpRepay {
			repayTx = txHash
		}
	}

	final := entity.Succeeded(a.plan.nftID)
	o.setState(ctx, logger, op, final)
	logger.Info("vault action succeeded", "nftId", a.plan.nftID)
	return final, nil
}

// action carries per-run context through the legs.
type action struct {
	id     uuid.UUID
	op     entity.OperationKind
	plan   *plan
	logger *slog.Logger
}

func (o *Orchestrator) executeLeg(ctx context.Context, a *action, l leg) (common.Hash, error) {
	if l.pull != nil {
		o.setState(ctx, a.logger, a.op, entity.InPhase(entity.PhaseCheckingApproval))
		if err := o.ensureAllowance(ctx, a, l.pull); err != nil {
			return common.Hash{}, err
		}
	}

	o.setState(ctx, a.logger, a.op, entity.InPhase(entity.PhaseExecuting))

	data, err := abicodec.EncodeCall(abicodec.SelectorOperate,
		abicodec.Uint256(a.plan.nftID),
		abicodec.Int256(l.deltaCollateral),
		abicodec.Int256(l.deltaDebt),
		abicodec.Address(a.plan.owner),
	)
	if err != nil {
		return common.Hash{}, &entity.TransactionError{Step: string(outbound.StepOperate), Err: err}
	}

	receipt, err := o.submit(ctx, a, outbound.StepOperate, a.plan.vault, data)
	if err != nil {
		return common.Hash{}, err
	}

	if a.plan.nftID.Sign() == 0 {
		id, ok := mintedID(receipt, a.plan.owner)
		if ok {
			a.plan.nftID = id
		} else {
			a.logger.Warn("no position mint found in operate receipt", "tx", receipt.TxHash)
		}
	}
	return receipt.TxHash, nil
}

// ensureAllowance approves the vault for exactly the pulled amount when the
// current allowance is short.
func (o *Orchestrator) ensureAllowance(ctx context.Context, a *action, p *pull) error {
	allowance, err := o.deps.Balances.Allowance(ctx, p.token, p.decimals, a.plan.owner, a.plan.vault)
	if err != nil {
		return fmt.Errorf("reading allowance: %w", err)
	}
	current, err := abicodec.ToRawInteger(allowance.Value, p.decimals)
	if err != nil {
		return fmt.Errorf("reading allowance: %w", err)
	}
	if current.Cmp(p.amount) >= 0 {
		a.logger.Debug("allowance sufficient, skipping approval", "token", p.token, "allowance", current)
		return nil
	}

	o.setState(ctx, a.logger, a.op, entity.InPhase(entity.PhaseApproving))

	data, err := abicodec.EncodeCall(abicodec.SelectorApprove, abicodec.Address(a.plan.vault), abicodec.Uint256(p.amount))
	if err != nil {
		return &entity.TransactionError{Step: string(outbound.StepApprove), Err: err}
	}
	_, err = o.submit(ctx, a, outbound.StepApprove, p.token, data)
	return err
}

// submit signs and broadcasts one transaction and waits for it to be mined.
// Every failure is a *entity.TransactionError.
func (o *Orchestrator) submit(ctx context.Context, a *action, step outbound.JournalStep, to common.Address, data string) (*outbound.Receipt, error) {
	txErr := func(err error) error {
		return &entity.TransactionError{Step: string(step), Err: err}
	}

	hash, err := o.deps.Signer.SignAndSubmit(ctx, outbound.TxRequest{
		From:  a.plan.owner,
		To:    to,
		Data:  data,
		Value: new(big.Int),
	})
	if err != nil {
		return nil, txErr(err)
	}
	submittedAt := time.Now()
	a.logger.Info("transaction submitted", "step", step, "tx", hash, "to", to)

	receipt, err := o.awaitReceipt(ctx, hash)
	if err != nil {
		return nil, txErr(err)
	}
	o.record(ctx, a, step, hash, receipt.Succeeded(), submittedAt)

	if !receipt.Succeeded() {
		return nil, txErr(fmt.Errorf("transaction %s reverted in block %d", hash.Hex(), receipt.BlockNumber))
	}
	return receipt, nil
}

func (o *Orchestrator) awaitReceipt(ctx context.Context, hash common.Hash) (*outbound.Receipt, error) {
	cfg := retry.Config{
		MaxRetries:     o.config.ReceiptPollAttempts - 1,
		InitialBackoff: o.config.ReceiptPollInterval,
		MaxBackoff:     o.config.ReceiptPollInterval,
		BackoffFactor:  1,
	}
	isRetryable := func(err error) bool {
		var netErr *entity.NetworkError
		return errors.Is(err, errPending) || errors.As(err, &netErr)
	}

	receipt, err := retry.Do(ctx, cfg, isRetryable, nil, func() (*outbound.Receipt, error) {
		r, err := o.deps.Receipts.TransactionReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, errPending
		}
		return r, nil
	})
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return nil, fmt.Errorf("no receipt for %s after %d lookups: %w", hash.Hex(), exhausted.Attempts, exhausted.Err)
	}
	if err != nil {
		return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// record appends to the journal. Journal failures never fail the action.
func (o *Orchestrator) record(ctx context.Context, a *action, step outbound.JournalStep, hash common.Hash, succeeded bool, at time.Time) {
	if o.config.Journal == nil {
		return
	}
	entry := outbound.JournalEntry{
		ActionID:    a.id,
		Operation:   a.op,
		Step:        step,
		Owner:       a.plan.owner,
		Vault:       a.plan.vault,
		NftID:       new(big.Int).Set(a.plan.nftID),
		TxHash:      hash,
		Succeeded:   succeeded,
		SubmittedAt: at,
	}
	if err := o.config.Journal.Record(ctx, entry); err != nil {
		a.logger.Warn("failed to journal transaction", "tx", hash, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, op entity.OperationKind, err error) (entity.TransactionState, error) {
	final := entity.Failed(err)
	o.setState(ctx, logger, op, final)

	var validationErr *entity.ValidationError
	if errors.As(err, &validationErr) {
		logger.Info("vault action rejected", "error", err)
	} else {
		logger.Error("vault action failed", "error", err)
	}
	return final, err
}

func (o *Orchestrator) setState(ctx context.Context, logger *slog.Logger, op entity.OperationKind, s entity.TransactionState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()

	logger.Debug("state transition", "state", s.Phase)
	if o.config.Metrics != nil {
		o.config.Metrics.RecordTransition(ctx, op, s.Phase)
	}
	if o.config.OnTransition != nil {
		o.config.OnTransition(s)
	}
}

// mintedID finds the position NFT minted to owner in receipt. The NFT
// contract may differ from the vault, so the emitter is not checked.
func mintedID(receipt *outbound.Receipt, owner common.Address) (*big.Int, bool) {
	for _, l := range receipt.Logs {
		if len(l.Topics) != 4 || l.Topics[0] != transferTopic {
			continue
		}
		from := common.BytesToAddress(l.Topics[1].Bytes())
		to := common.BytesToAddress(l.Topics[2].Bytes())
		if from != (common.Address{}) || to != owner {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}
