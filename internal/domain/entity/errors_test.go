package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsReverted(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"message match", &RPCError{Code: -32000, Message: "execution reverted"}, true},
		{"code 3", &RPCError{Code: 3, Message: "custom error"}, true},
		{"wrapped", fmt.Errorf("calling resolver: %w", &RPCError{Code: -32000, Message: "Execution Reverted: nothing"}), true},
		{"other rpc error", &RPCError{Code: -32601, Message: "method not found"}, false},
		{"network error", &NetworkError{Method: "eth_call", Attempts: 2, Err: errors.New("refused")}, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsReverted(tt.err))
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	base := errors.New("boom")

	assert.ErrorIs(t, &NetworkError{Err: base}, base)
	assert.ErrorIs(t, &DecodingError{Reason: "short", Err: base}, base)
	assert.ErrorIs(t, &TransactionError{Step: "approve", Err: base}, base)
	assert.Contains(t, (&RPCError{Code: 3, Message: "execution reverted", Data: "0x"}).Error(), "data: 0x")
	assert.Equal(t, "validation failed: amount: must be positive", (&ValidationError{Field: "amount", Reason: "must be positive"}).Error())
}
