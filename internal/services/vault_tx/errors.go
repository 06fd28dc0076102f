package vault_tx

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrBusy is returned when an operation is started while another one on the
// same orchestrator is still in flight.
var ErrBusy = errors.New("vault transaction already in progress")

// PartialCloseError reports a close whose repay leg landed but whose withdraw
// leg failed. The debt is cleared; the collateral is still in the vault and
// can be recovered with Withdraw alone.
type PartialCloseError struct {
	RepayTx common.Hash
	Err     error
}

func (e *PartialCloseError) Error() string {
	return fmt.Sprintf("close incomplete: debt repaid in %s but collateral remains locked, call Withdraw to recover it: %v",
		e.RepayTx.Hex(), e.Err)
}

func (e *PartialCloseError) Unwrap() error {
	return e.Err
}
