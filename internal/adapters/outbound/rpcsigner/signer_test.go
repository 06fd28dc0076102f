package rpcsigner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/archon-research/stl/vault-engine/internal/testutil"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	vault = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newSigner(t *testing.T, node *testutil.MockNode) *Signer {
	t.Helper()
	client, err := ethrpc.NewClient(ethrpc.ClientConfig{
		PrimaryURL: node.URL,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	s, err := New(client, nil)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresCaller(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestSignAndSubmit(t *testing.T) {
	node := testutil.StartMockNode(t)
	want := common.HexToHash("0xdeadbeef")

	var args []map[string]string
	node.OnMethod("eth_sendTransaction", func(params json.RawMessage) (any, *testutil.RPCFailure) {
		require.NoError(t, json.Unmarshal(params, &args))
		return want.Hex(), nil
	})

	hash, err := newSigner(t, node).SignAndSubmit(context.Background(), outbound.TxRequest{
		From: owner,
		To:   vault,
		Data: "0x690d8320",
	})
	require.NoError(t, err)
	assert.Equal(t, want, hash)

	require.Len(t, args, 1)
	assert.Equal(t, owner, common.HexToAddress(args[0]["from"]))
	assert.Equal(t, vault, common.HexToAddress(args[0]["to"]))
	assert.Equal(t, "0x690d8320", args[0]["data"])
	assert.Equal(t, "0x0", args[0]["value"], "nil value is sent as zero")
}

func TestSignAndSubmit_Value(t *testing.T) {
	node := testutil.StartMockNode(t)
	var args []map[string]string
	node.OnMethod("eth_sendTransaction", func(params json.RawMessage) (any, *testutil.RPCFailure) {
		require.NoError(t, json.Unmarshal(params, &args))
		return common.HexToHash("0x01").Hex(), nil
	})

	_, err := newSigner(t, node).SignAndSubmit(context.Background(), outbound.TxRequest{
		From: owner, To: vault, Data: "0x", Value: big.NewInt(255),
	})
	require.NoError(t, err)
	assert.Equal(t, "0xff", args[0]["value"])
}

func TestSignAndSubmit_Rejected(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnMethod("eth_sendTransaction", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return nil, &testutil.RPCFailure{Code: 4001, Message: "User rejected the request."}
	})

	_, err := newSigner(t, node).SignAndSubmit(context.Background(), outbound.TxRequest{From: owner, To: vault})
	require.Error(t, err)

	var rpcErr *entity.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 4001, rpcErr.Code)
}

func TestSignAndSubmit_MalformedHash(t *testing.T) {
	tests := []struct {
		name   string
		result any
	}{
		{"not a string", 12},
		{"short hash", "0x1234"},
		{"not hex", "0xzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.StartMockNode(t)
			node.OnMethod("eth_sendTransaction", func(json.RawMessage) (any, *testutil.RPCFailure) {
				return tt.result, nil
			})

			_, err := newSigner(t, node).SignAndSubmit(context.Background(), outbound.TxRequest{From: owner, To: vault})
			var decErr *entity.DecodingError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}
