package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a request that failed local sanity checks.
// It never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NetworkError is returned when every configured endpoint failed at the
// transport level. Err is the last transport error observed.
type NetworkError struct {
	Method   string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s after %d attempt(s): %v", e.Method, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RPCError is a JSON-RPC error object returned by a node that executed the
// request and rejected it.
type RPCError struct {
	Code    int
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("RPC error %d: %s (data: %s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// revertCode is the error code geth-compatible nodes use for reverted calls.
const revertCode = 3

// IsRevert reports whether the node rejected the call because the EVM reverted.
func (e *RPCError) IsRevert() bool {
	if e.Code == revertCode {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "execution reverted")
}

// IsReverted reports whether err carries an RPCError for a reverted call.
func IsReverted(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.IsRevert()
}

// DecodingError reports a malformed or truncated hex payload.
type DecodingError struct {
	Reason string
	Err    error
}

func (e *DecodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decoding error: %s", e.Reason)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// TransactionError wraps a Signer or on-chain execution failure during a
// vault transaction step.
type TransactionError struct {
	Step string
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Step, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// ErrPositionNotFound is returned when an owner holds no position with the
// requested NFT id in a vault.
var ErrPositionNotFound = errors.New("position not found")
