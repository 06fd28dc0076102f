// Package rpcsigner implements the Signer port by forwarding unsigned
// transactions to a JSON-RPC endpoint that holds the user's key, such as a
// wallet bridge or a node with an unlocked account.
package rpcsigner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.Signer = (*Signer)(nil)

// RawCaller sends a raw JSON-RPC request. *ethrpc.Client satisfies it.
type RawCaller interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Data  string         `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

// Signer submits transactions with eth_sendTransaction. The caller behind it
// should have no fallback endpoint: a transport failure after the request
// left may still have broadcast the transaction.
type Signer struct {
	caller RawCaller
	logger *slog.Logger
}

// New creates a Signer.
func New(caller RawCaller, logger *slog.Logger) (*Signer, error) {
	if caller == nil {
		return nil, fmt.Errorf("rpc caller is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{caller: caller, logger: logger.With("component", "rpc-signer")}, nil
}

// SignAndSubmit forwards tx and returns its hash.
func (s *Signer) SignAndSubmit(ctx context.Context, tx outbound.TxRequest) (common.Hash, error) {
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	raw, err := s.caller.Call(ctx, "eth_sendTransaction", sendTxArgs{
		From:  tx.From,
		To:    tx.To,
		Data:  tx.Data,
		Value: (*hexutil.Big)(value),
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}

	var hashHex string
	if err := json.Unmarshal(raw, &hashHex); err != nil {
		return common.Hash{}, &entity.DecodingError{Reason: "eth_sendTransaction result is not a string", Err: err}
	}
	b, err := hexutil.Decode(hashHex)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, &entity.DecodingError{Reason: fmt.Sprintf("invalid transaction hash %q", hashHex), Err: err}
	}

	hash := common.BytesToHash(b)
	s.logger.Debug("transaction forwarded", "tx", hash, "from", tx.From, "to", tx.To)
	return hash, nil
}
