package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is an unsigned transaction handed to a Signer.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  string
	Value *big.Int
}

// Signer signs and broadcasts transactions on behalf of a user. The engine
// never holds private keys.
type Signer interface {
	SignAndSubmit(ctx context.Context, tx TxRequest) (common.Hash, error)
}
