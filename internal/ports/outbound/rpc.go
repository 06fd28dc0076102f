// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller executes read-only contract calls.
type ContractCaller interface {
	// EthCall runs eth_call against the latest block and returns the
	// 0x-prefixed result. from may be nil.
	EthCall(ctx context.Context, to common.Address, data string, from *common.Address) (string, error)
}

// ReceiptFetcher looks up mined transactions.
type ReceiptFetcher interface {
	// TransactionReceipt returns nil, nil while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// RPCClient is the full JSON-RPC surface used by the engine.
type RPCClient interface {
	ContractCaller
	ReceiptFetcher

	// Call sends a raw JSON-RPC request and returns the result field.
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)

	// BlockNumber returns the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)
}

// Receipt status values.
const (
	ReceiptStatusFailed  uint64 = 0
	ReceiptStatusSuccess uint64 = 1
)

// Receipt is the subset of a transaction receipt the engine reads.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	Logs        []Log
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccess
}

// Log is an event emitted by a mined transaction.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    string
}
