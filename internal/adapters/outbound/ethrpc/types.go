package ethrpc

import (
	"encoding/json"
	"fmt"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/hexutil"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/ethereum/go-ethereum/common"
)

// jsonRPCRequest represents a JSON-RPC 2.0 request.
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// jsonRPCResponse represents a JSON-RPC 2.0 response.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// jsonRPCError represents a JSON-RPC 2.0 error.
type jsonRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// toEntity converts the wire error. String data (usually revert bytes) is
// unquoted, anything else is kept as raw JSON.
func (e *jsonRPCError) toEntity() *entity.RPCError {
	out := &entity.RPCError{Code: e.Code, Message: e.Message}
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return out
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		out.Data = s
	} else {
		out.Data = string(e.Data)
	}
	return out
}

// callObject is the first eth_call parameter.
type callObject struct {
	From *common.Address `json:"from,omitempty"`
	To   common.Address  `json:"to"`
	Data string          `json:"data"`
}

type rpcReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	Status          string      `json:"status"`
	BlockNumber     string      `json:"blockNumber"`
	Logs            []rpcLog    `json:"logs"`
}

type rpcLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    string         `json:"data"`
}

func (r rpcReceipt) toReceipt() (*outbound.Receipt, error) {
	status, err := hexutil.ParseUint64(r.Status)
	if err != nil {
		return nil, fmt.Errorf("status %q: %w", r.Status, err)
	}
	block, err := hexutil.ParseUint64(r.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("blockNumber %q: %w", r.BlockNumber, err)
	}

	logs := make([]outbound.Log, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = outbound.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
	}

	return &outbound.Receipt{
		TxHash:      r.TransactionHash,
		Status:      status,
		BlockNumber: block,
		Logs:        logs,
	}, nil
}
