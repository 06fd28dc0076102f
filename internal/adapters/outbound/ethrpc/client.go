// Package ethrpc is a JSON-RPC 2.0 client for Ethereum-compatible nodes.
//
// Each request goes to the primary endpoint first. A transport failure
// (dial error, timeout, HTTP 5xx/429, unreadable body) is retried exactly once
// on the fallback endpoint, without backoff. Errors returned by the node
// itself are never retried.
package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/hexutil"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/ethereum/go-ethereum/common"
)

// Compile-time check that Client implements outbound.RPCClient.
var _ outbound.RPCClient = (*Client)(nil)

// ClientConfig holds configuration for the JSON-RPC client.
type ClientConfig struct {
	// PrimaryURL is the node every request is sent to first.
	PrimaryURL string

	// FallbackURL, when set, receives one retry after a transport failure
	// on the primary.
	FallbackURL string

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration

	// Logger is the structured logger for the client.
	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client. Timeout is ignored when set.
	HTTPClient *http.Client

	// Telemetry is optional.
	Telemetry *Telemetry
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		Timeout: 15 * time.Second,
		Logger:  slog.Default(),
	}
}

type endpoint struct {
	name string
	url  string
}

// Client implements outbound.RPCClient over HTTP.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	endpoints  []endpoint
	logger     *slog.Logger
	telemetry  *Telemetry
	nextID     atomic.Uint64
}

// NewClient creates a new JSON-RPC client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.PrimaryURL == "" {
		return nil, errors.New("PrimaryURL is required")
	}

	defaults := ClientConfigDefaults()
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	endpoints := []endpoint{{name: "primary", url: config.PrimaryURL}}
	if config.FallbackURL != "" {
		endpoints = append(endpoints, endpoint{name: "fallback", url: config.FallbackURL})
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		endpoints:  endpoints,
		logger:     config.Logger.With("component", "ethrpc-client"),
		telemetry:  config.Telemetry,
	}, nil
}

// Call sends method with params and returns the raw result. A JSON-RPC error
// object is returned as *entity.RPCError. When every endpoint fails at the
// transport level the result is *entity.NetworkError.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	ctx, span := c.telemetry.StartSpan(ctx, method)
	defer span.End()

	var lastErr error
	attempts := 0
	for i, ep := range c.endpoints {
		if i > 0 {
			c.logger.Warn("primary endpoint failed, retrying on fallback",
				"method", method,
				"error", lastErr,
			)
			c.telemetry.RecordFallback(ctx, method)
		}

		attempts++
		start := time.Now()
		resp, err := c.post(ctx, ep.url, body)
		if err == nil {
			if resp.Error != nil {
				rpcErr := resp.Error.toEntity()
				c.telemetry.RecordRequest(ctx, method, ep.name, time.Since(start), outcomeRPCError)
				span.RecordError(rpcErr)
				return nil, rpcErr
			}
			c.telemetry.RecordRequest(ctx, method, ep.name, time.Since(start), outcomeSuccess)
			return resp.Result, nil
		}

		c.telemetry.RecordRequest(ctx, method, ep.name, time.Since(start), outcomeTransportError)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	netErr := &entity.NetworkError{Method: method, Attempts: attempts, Err: lastErr}
	span.RecordError(netErr)
	c.logger.Error("all RPC endpoints failed", "method", method, "attempts", attempts, "error", lastErr)
	return nil, netErr
}

// post performs one HTTP round trip. Any returned error is a transport failure.
func (c *Client) post(ctx context.Context, url string, body []byte) (*jsonRPCResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("HTTP %d: server error", httpResp.StatusCode)
	}

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBytes, &rpcResp); err != nil {
		if httpResp.StatusCode >= 300 {
			return nil, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, truncate(respBytes, 200))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if httpResp.StatusCode >= 300 && rpcResp.Error == nil {
		return nil, fmt.Errorf("HTTP %d without JSON-RPC error", httpResp.StatusCode)
	}

	return &rpcResp, nil
}

// EthCall runs eth_call against the latest block.
func (c *Client) EthCall(ctx context.Context, to common.Address, data string, from *common.Address) (string, error) {
	raw, err := c.Call(ctx, "eth_call", callObject{From: from, To: to, Data: data}, "latest")
	if err != nil {
		return "", err
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &entity.DecodingError{Reason: "eth_call result is not a hex string", Err: err}
	}
	return result, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, &entity.DecodingError{Reason: "eth_blockNumber result is not a string", Err: err}
	}
	n, err := hexutil.ParseUint64(result)
	if err != nil {
		return 0, &entity.DecodingError{Reason: fmt.Sprintf("invalid block number %q", result), Err: err}
	}
	return n, nil
}

// Check reports whether any endpoint answers eth_blockNumber.
func (c *Client) Check(ctx context.Context) error {
	if _, err := c.BlockNumber(ctx); err != nil {
		return fmt.Errorf("node health check: %w", err)
	}
	return nil
}

// TransactionReceipt returns the receipt of hash, or nil while it is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*outbound.Receipt, error) {
	raw, err := c.Call(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &entity.DecodingError{Reason: "malformed receipt", Err: err}
	}
	receipt, err := r.toReceipt()
	if err != nil {
		return nil, &entity.DecodingError{Reason: "malformed receipt", Err: err}
	}
	return receipt, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
