package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// JSONRPCRequest represents a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

// RPCFailure is a JSON-RPC error object a mock handler can answer with.
type RPCFailure struct {
	Code    int
	Message string
	Data    string
}

// Revert builds the error a geth node returns for a reverted eth_call.
func Revert(data string) *RPCFailure {
	return &RPCFailure{Code: 3, Message: "execution reverted", Data: data}
}

// MethodHandler answers one JSON-RPC method. It returns either a result to
// marshal or a failure.
type MethodHandler func(params json.RawMessage) (any, *RPCFailure)

// EthCallHandler answers an eth_call whose calldata starts with a selector.
type EthCallHandler func(calldata string) (string, *RPCFailure)

// MockNode is an in-process Ethereum JSON-RPC node.
type MockNode struct {
	*httptest.Server

	mu       sync.Mutex
	methods  map[string]MethodHandler
	ethCalls map[string]EthCallHandler
	calls    map[string]int
	requests []JSONRPCRequest
}

// StartMockNode starts a node that answers "method not found" until handlers
// are registered. It is closed when the test ends.
func StartMockNode(t *testing.T) *MockNode {
	t.Helper()

	n := &MockNode{
		methods:  make(map[string]MethodHandler),
		ethCalls: make(map[string]EthCallHandler),
		calls:    make(map[string]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// OnMethod registers a handler for method.
func (n *MockNode) OnMethod(method string, h MethodHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods[method] = h
}

// OnEthCall registers a handler for eth_call requests to selector
// ("0x70a08231").
func (n *MockNode) OnEthCall(selector string, h EthCallHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ethCalls[strings.ToLower(selector)] = h
}

// Calls returns how often method was requested.
func (n *MockNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Requests returns a copy of every request received so far.
func (n *MockNode) Requests() []JSONRPCRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]JSONRPCRequest(nil), n.requests...)
}

func (n *MockNode) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteRPCError(w, json.RawMessage(`1`), -32700, "parse error")
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	n.requests = append(n.requests, req)
	handler, ok := n.methods[req.Method]
	n.mu.Unlock()

	if req.Method == "eth_call" && !ok {
		n.serveEthCall(w, req)
		return
	}
	if !ok {
		WriteRPCError(w, req.ID, -32601, "method not found: "+req.Method)
		return
	}

	result, failure := handler(req.Params)
	writeOutcome(w, req.ID, result, failure)
}

func (n *MockNode) serveEthCall(w http.ResponseWriter, req JSONRPCRequest) {
	calldata := EthCallData(req.Params)
	if len(calldata) < 10 {
		WriteRPCError(w, req.ID, -32602, "missing calldata")
		return
	}

	n.mu.Lock()
	handler, ok := n.ethCalls[strings.ToLower(calldata[:10])]
	n.mu.Unlock()
	if !ok {
		WriteRPCErrorData(w, req.ID, 3, "execution reverted", "0x")
		return
	}

	result, failure := handler(calldata)
	writeOutcome(w, req.ID, result, failure)
}

func writeOutcome(w http.ResponseWriter, id json.RawMessage, result any, failure *RPCFailure) {
	if failure != nil {
		WriteRPCErrorData(w, id, failure.Code, failure.Message, failure.Data)
		return
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		WriteRPCError(w, id, -32603, fmt.Sprintf("marshal result: %v", err))
		return
	}
	WriteRPCResult(w, id, resultJSON)
}

// EthCallData extracts the calldata of an eth_call request.
func EthCallData(params json.RawMessage) string {
	var p []json.RawMessage
	if err := json.Unmarshal(params, &p); err != nil || len(p) < 1 {
		return ""
	}
	var callObj map[string]any
	if err := json.Unmarshal(p[0], &callObj); err != nil {
		return ""
	}
	dataHex, _ := callObj["data"].(string)
	if dataHex == "" {
		dataHex, _ = callObj["input"].(string)
	}
	return dataHex
}

// WriteRPCResult writes a JSON-RPC success response.
func WriteRPCResult(w http.ResponseWriter, id, result json.RawMessage) {
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"result":  result,
	})
}

// WriteRPCError writes a JSON-RPC error response.
func WriteRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	WriteRPCErrorData(w, id, code, message, "")
}

// WriteRPCErrorData writes a JSON-RPC error response with a data field.
func WriteRPCErrorData(w http.ResponseWriter, id json.RawMessage, code int, message, data string) {
	errObj := map[string]any{"code": code, "message": message}
	if data != "" {
		errObj["data"] = data
	}
	errJSON, _ := json.Marshal(errObj)
	_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{
		"jsonrpc": json.RawMessage(`"2.0"`),
		"id":      id,
		"error":   json.RawMessage(errJSON),
	})
}
