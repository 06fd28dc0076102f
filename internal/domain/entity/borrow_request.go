package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OperationKind names a vault action driven by the orchestrator.
type OperationKind string

const (
	OpBorrow        OperationKind = "borrow"
	OpAddCollateral OperationKind = "add_collateral"
	OpRepay         OperationKind = "repay"
	OpWithdraw      OperationKind = "withdraw"
	OpClose         OperationKind = "close"
)

// BorrowRequest describes a vault mutation. Amounts are absolute, non-negative
// quantities; the operation kind decides their sign on chain. NftID is nil or
// zero when a new position should be opened.
type BorrowRequest struct {
	CollateralAmount TokenAmount
	DebtAmount       TokenAmount
	UserAddress      common.Address
	VaultAddress     common.Address
	NftID            *big.Int
}

// NewBorrowRequest checks the structural fields of a request. Economic checks
// (balances, LTV, health factor) are done by the orchestrator.
func NewBorrowRequest(collateral, debt TokenAmount, user, vault common.Address, nftID *big.Int) (BorrowRequest, error) {
	r := BorrowRequest{
		CollateralAmount: collateral,
		DebtAmount:       debt,
		UserAddress:      user,
		VaultAddress:     vault,
		NftID:            nftID,
	}
	if err := r.Validate(); err != nil {
		return BorrowRequest{}, err
	}
	return r, nil
}

// Validate checks addresses and signs. Requests built as struct literals
// must be validated before use.
func (r BorrowRequest) Validate() error {
	if r.UserAddress == (common.Address{}) {
		return &ValidationError{Field: "userAddress", Reason: "must not be the zero address"}
	}
	if r.VaultAddress == (common.Address{}) {
		return &ValidationError{Field: "vaultAddress", Reason: "must not be the zero address"}
	}
	if r.CollateralAmount.Value.IsNegative() {
		return &ValidationError{Field: "collateralAmount", Reason: "must not be negative"}
	}
	if r.DebtAmount.Value.IsNegative() {
		return &ValidationError{Field: "debtAmount", Reason: "must not be negative"}
	}
	if r.NftID != nil && r.NftID.Sign() < 0 {
		return &ValidationError{Field: "nftId", Reason: "must not be negative"}
	}
	return nil
}

// IsNewPosition reports whether the request opens a new NFT position.
func (r BorrowRequest) IsNewPosition() bool {
	return r.NftID == nil || r.NftID.Sign() == 0
}

// PositionID returns the NFT id to pass on chain (0 for a new position).
func (r BorrowRequest) PositionID() *big.Int {
	if r.NftID == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.NftID)
}
