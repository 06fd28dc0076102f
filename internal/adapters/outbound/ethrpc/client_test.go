package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

// countingTransport counts round trips that reach the network layer.
type countingTransport struct {
	n    atomic.Int32
	next http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.n.Add(1)
	return c.next.RoundTrip(r)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// deadURL returns the address of a server that no longer accepts connections.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func newTestClient(t *testing.T, primary, fallback string) (*Client, *countingTransport) {
	t.Helper()
	transport := &countingTransport{next: http.DefaultTransport}
	client, err := NewClient(ClientConfig{
		PrimaryURL:  primary,
		FallbackURL: fallback,
		Logger:      quietLogger(),
		HTTPClient:  &http.Client{Transport: transport, Timeout: 5 * time.Second},
	})
	require.NoError(t, err)
	return client, transport
}

func TestNewClient_RequiresPrimaryURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	client, err := NewClient(ClientConfig{PrimaryURL: "http://localhost:8545"})
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, client.httpClient.Timeout)
	assert.Len(t, client.endpoints, 1)
}

func TestCall_FramesRequest(t *testing.T) {
	var got []testutil.JSONRPCRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req testutil.JSONRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		got = append(got, req)
		testutil.WriteRPCResult(w, req.ID, json.RawMessage(`"0x1"`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "")
	ctx := context.Background()

	_, err := client.Call(ctx, "eth_chainId")
	require.NoError(t, err)
	_, err = client.Call(ctx, "eth_getBalance", "0xabc", "latest")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "2.0", got[0].JSONRPC)
	assert.Equal(t, "eth_chainId", got[0].Method)
	assert.JSONEq(t, `[]`, string(got[0].Params))
	assert.JSONEq(t, `["0xabc","latest"]`, string(got[1].Params))

	var id0, id1 uint64
	require.NoError(t, json.Unmarshal(got[0].ID, &id0))
	require.NoError(t, json.Unmarshal(got[1].ID, &id1))
	assert.Greater(t, id1, id0)
}

func TestCall_FallbackAfterPrimaryTransportFailure(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnMethod("eth_blockNumber", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return "0x10", nil
	})

	client, transport := newTestClient(t, deadURL(t), node.URL)

	n, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), n)
	assert.Equal(t, int32(2), transport.n.Load())
	assert.Equal(t, 1, node.Calls("eth_blockNumber"))
}

func TestCall_BothEndpointsFail(t *testing.T) {
	client, transport := newTestClient(t, deadURL(t), deadURL(t))

	_, err := client.Call(context.Background(), "eth_blockNumber")
	require.Error(t, err)

	var netErr *entity.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "eth_blockNumber", netErr.Method)
	assert.Equal(t, 2, netErr.Attempts)
	assert.NotNil(t, netErr.Err)
	assert.Equal(t, int32(2), transport.n.Load())
}

func TestCall_NoFallbackConfigured(t *testing.T) {
	client, transport := newTestClient(t, deadURL(t), "")

	_, err := client.Call(context.Background(), "eth_blockNumber")

	var netErr *entity.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, 1, netErr.Attempts)
	assert.Equal(t, int32(1), transport.n.Load())
}

func TestCall_ServerErrorTriggersFallback(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "HTTP 502", status: http.StatusBadGateway, body: "bad gateway"},
		{name: "HTTP 429", status: http.StatusTooManyRequests, body: "slow down"},
		{name: "unparseable body", status: http.StatusOK, body: "<html>oops</html>"},
		{name: "HTTP 404 without RPC error", status: http.StatusNotFound, body: "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer primary.Close()

			node := testutil.StartMockNode(t)
			node.OnMethod("eth_chainId", func(json.RawMessage) (any, *testutil.RPCFailure) {
				return "0x1", nil
			})

			client, transport := newTestClient(t, primary.URL, node.URL)
			raw, err := client.Call(context.Background(), "eth_chainId")
			require.NoError(t, err)
			assert.JSONEq(t, `"0x1"`, string(raw))
			assert.Equal(t, int32(2), transport.n.Load())
		})
	}
}

func TestCall_RPCErrorIsNotRetried(t *testing.T) {
	primary := testutil.StartMockNode(t)
	primary.OnMethod("eth_call", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return nil, testutil.Revert("0x08c379a0")
	})
	fallback := testutil.StartMockNode(t)

	client, transport := newTestClient(t, primary.URL, fallback.URL)
	_, err := client.EthCall(context.Background(), common.HexToAddress("0x01"), "0x12345678", nil)

	var rpcErr *entity.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 3, rpcErr.Code)
	assert.Equal(t, "execution reverted", rpcErr.Message)
	assert.Equal(t, "0x08c379a0", rpcErr.Data)
	assert.True(t, entity.IsReverted(err))
	assert.Equal(t, int32(1), transport.n.Load())
	assert.Equal(t, 0, fallback.Calls("eth_call"))
}

func TestCall_RPCErrorWithNonStringData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom","data":{"reason":"x"}}}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, "")
	_, err := client.Call(context.Background(), "eth_call")

	var rpcErr *entity.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
	assert.JSONEq(t, `{"reason":"x"}`, rpcErr.Data)
	assert.False(t, rpcErr.IsRevert())
}

func TestCall_RPCErrorInsideHTTP400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`))
	}))
	defer srv.Close()

	client, transport := newTestClient(t, srv.URL, deadURL(t))
	_, err := client.Call(context.Background(), "eth_call")

	var rpcErr *entity.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)
	assert.Equal(t, int32(1), transport.n.Load())
}

func TestCall_ContextCancelledSkipsFallback(t *testing.T) {
	node := testutil.StartMockNode(t)
	client, transport := newTestClient(t, deadURL(t), node.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Call(ctx, "eth_blockNumber")

	var netErr *entity.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, netErr.Attempts)
	assert.LessOrEqual(t, transport.n.Load(), int32(1))
	assert.Equal(t, 0, node.Calls("eth_blockNumber"))
}

func TestEthCall_SendsCallObject(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnEthCall("0x70a08231", func(calldata string) (string, *testutil.RPCFailure) {
		return "0x" + testutil.WordInt(5), nil
	})

	client, _ := newTestClient(t, node.URL, "")
	from := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	result, err := client.EthCall(context.Background(), to, "0x70a08231"+testutil.WordInt(1), &from)
	require.NoError(t, err)
	assert.Equal(t, "0x"+testutil.WordInt(5), result)

	reqs := node.Requests()
	require.Len(t, reqs, 1)
	var params []json.RawMessage
	require.NoError(t, json.Unmarshal(reqs[0].Params, &params))
	require.Len(t, params, 2)
	assert.JSONEq(t, `"latest"`, string(params[1]))

	var obj map[string]string
	require.NoError(t, json.Unmarshal(params[0], &obj))
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", obj["from"])
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", obj["to"])
}

func TestEthCall_OmitsEmptyFrom(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnEthCall("0x12345678", func(string) (string, *testutil.RPCFailure) { return "0x", nil })

	client, _ := newTestClient(t, node.URL, "")
	_, err := client.EthCall(context.Background(), common.HexToAddress("0x01"), "0x12345678", nil)
	require.NoError(t, err)

	var params []map[string]any
	_ = json.Unmarshal(node.Requests()[0].Params, &params)
	_, hasFrom := params[0]["from"]
	assert.False(t, hasFrom)
}

func TestEthCall_NonStringResult(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnMethod("eth_call", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return 42, nil
	})

	client, _ := newTestClient(t, node.URL, "")
	_, err := client.EthCall(context.Background(), common.HexToAddress("0x01"), "0x12345678", nil)

	var decErr *entity.DecodingError
	require.ErrorAs(t, err, &decErr)
}

func TestBlockNumber_InvalidResult(t *testing.T) {
	tests := []struct {
		name   string
		result any
	}{
		{name: "number instead of string", result: 16},
		{name: "not hex", result: "0xzz"},
		{name: "empty", result: "0x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := testutil.StartMockNode(t)
			node.OnMethod("eth_blockNumber", func(json.RawMessage) (any, *testutil.RPCFailure) {
				return tt.result, nil
			})
			client, _ := newTestClient(t, node.URL, "")

			_, err := client.BlockNumber(context.Background())
			var decErr *entity.DecodingError
			require.ErrorAs(t, err, &decErr)
		})
	}
}

func TestTransactionReceipt_Pending(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnMethod("eth_getTransactionReceipt", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return nil, nil
	})
	client, _ := newTestClient(t, node.URL, "")

	receipt, err := client.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestTransactionReceipt_Parsed(t *testing.T) {
	hash := common.HexToHash("0xabc")
	node := testutil.StartMockNode(t)
	node.OnMethod("eth_getTransactionReceipt", func(params json.RawMessage) (any, *testutil.RPCFailure) {
		var p []string
		_ = json.Unmarshal(params, &p)
		assert.Equal(t, hash.Hex(), p[0])
		return map[string]any{
			"transactionHash": hash.Hex(),
			"status":          "0x1",
			"blockNumber":     "0x2a",
			"logs": []map[string]any{{
				"address": "0x00000000000000000000000000000000000000cc",
				"topics":  []string{common.HexToHash("0x01").Hex(), common.HexToHash("0x02").Hex()},
				"data":    "0x",
			}},
		}, nil
	})
	client, _ := newTestClient(t, node.URL, "")

	receipt, err := client.TransactionReceipt(context.Background(), hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(42), receipt.BlockNumber)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, common.HexToAddress("0xcc"), receipt.Logs[0].Address)
	assert.Len(t, receipt.Logs[0].Topics, 2)
}

func TestTransactionReceipt_Malformed(t *testing.T) {
	node := testutil.StartMockNode(t)
	node.OnMethod("eth_getTransactionReceipt", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return map[string]any{"status": "yes", "blockNumber": "0x1"}, nil
	})
	client, _ := newTestClient(t, node.URL, "")

	_, err := client.TransactionReceipt(context.Background(), common.HexToHash("0x01"))
	var decErr *entity.DecodingError
	require.ErrorAs(t, err, &decErr)
}

func TestTelemetry_RecordsFallback(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tel, err := NewTelemetryWithProviders(noop.NewTracerProvider(), provider)
	require.NoError(t, err)

	node := testutil.StartMockNode(t)
	node.OnMethod("eth_blockNumber", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return "0x1", nil
	})
	client, err := NewClient(ClientConfig{
		PrimaryURL:  deadURL(t),
		FallbackURL: node.URL,
		Logger:      quietLogger(),
		Telemetry:   tel,
	})
	require.NoError(t, err)

	_, err = client.BlockNumber(context.Background())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), sums["ethrpc.client.fallbacks.total"])
	assert.Equal(t, int64(2), sums["ethrpc.client.requests.total"])
}

func TestCall_WithoutTelemetryLeavesCallerSpanOpen(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, parent := provider.Tracer("caller").Start(context.Background(), "caller-op")

	node := testutil.StartMockNode(t)
	node.OnMethod("eth_blockNumber", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return "0x2a", nil
	})
	node.OnMethod("eth_chainId", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return nil, &testutil.RPCFailure{Code: -32000, Message: "unavailable"}
	})
	client, _ := newTestClient(t, node.URL, "")

	n, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	_, err = client.Call(ctx, "eth_chainId")
	require.Error(t, err)

	assert.True(t, parent.IsRecording(), "caller span must stay open")
	assert.Empty(t, recorder.Ended())
	assert.Empty(t, recorder.Started()[0].Events(), "caller span must not carry client errors")

	parent.End()
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "caller-op", recorder.Ended()[0].Name())
}

func TestCheck(t *testing.T) {
	node := testutil.StartMockNode(t)
	client, _ := newTestClient(t, node.URL, "")

	require.Error(t, client.Check(context.Background()), "method not registered yet")

	node.OnMethod("eth_blockNumber", func(json.RawMessage) (any, *testutil.RPCFailure) {
		return "0x10", nil
	})
	assert.NoError(t, client.Check(context.Background()))
}
