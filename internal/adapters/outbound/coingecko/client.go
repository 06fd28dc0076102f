// Package coingecko implements the price oracle on top of CoinGecko's
// /simple/price endpoint, with retry on transient failures and a client-side
// rate limit.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/archon-research/stl/vault-engine/internal/pkg/retry"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

var _ outbound.PriceOracle = (*Client)(nil)

const (
	publicBaseURL = "https://api.coingecko.com/api/v3"
	proBaseURL    = "https://pro-api.coingecko.com/api/v3"

	// maxRetryAfter bounds how long a Retry-After header may stall a lookup.
	maxRetryAfter = 30 * time.Second
)

// ErrUnknownToken is returned for tokens without a CoinGecko asset id.
var ErrUnknownToken = errors.New("token has no price source")

// ClientConfig holds configuration for the CoinGecko client.
type ClientConfig struct {
	// APIKey is the CoinGecko Pro API key. Without it the public API is used.
	APIKey string

	// BaseURL defaults to the Pro API when APIKey is set, else the public API.
	BaseURL string

	// AssetIDs maps token addresses to CoinGecko asset ids.
	AssetIDs map[common.Address]string

	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// RateLimitPerMin defaults to 25, under the public API's limit.
	RateLimitPerMin int

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         publicBaseURL,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		BackoffFactor:   2.0,
		RateLimitPerMin: 25,
		Logger:          slog.Default(),
	}
}

// Client fetches current USD prices from CoinGecko.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	limiter     *rate.Limiter
	retryConfig retry.Config
}

// NewClient creates a new CoinGecko client.
func NewClient(config ClientConfig) (*Client, error) {
	if len(config.AssetIDs) == 0 {
		return nil, errors.New("at least one asset id is required")
	}
	for token, id := range config.AssetIDs {
		if id == "" {
			return nil, fmt.Errorf("empty asset id for token %s", token.Hex())
		}
	}

	defaults := ClientConfigDefaults()
	if config.APIKey != "" {
		defaults.BaseURL = proBaseURL
	}
	applyDefaults(&config, defaults)

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "coingecko-client"),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retryConfig: retry.Config{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			BackoffFactor:  config.BackoffFactor,
		},
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// CurrentPrice returns the USD price of token.
func (c *Client) CurrentPrice(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	prices, err := c.CurrentPrices(ctx, []common.Address{token})
	if err != nil {
		return decimal.Zero, err
	}
	return prices[token], nil
}

// CurrentPrices fetches the USD prices of several tokens in one request.
// Every token must be known and priced, otherwise the call fails.
func (c *Client) CurrentPrices(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	if len(tokens) == 0 {
		return map[common.Address]decimal.Decimal{}, nil
	}

	ids := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		id, ok := c.config.AssetIDs[token]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	endpoint := fmt.Sprintf("%s/simple/price", c.config.BaseURL)
	params := url.Values{
		"ids":                     {strings.Join(ids, ",")},
		"vs_currencies":           {"usd"},
		"include_last_updated_at": {"true"},
	}

	var response simplePriceResponse
	if err := c.doRequest(ctx, endpoint, params, &response); err != nil {
		return nil, err
	}

	prices := make(map[common.Address]decimal.Decimal, len(tokens))
	for _, token := range tokens {
		id := c.config.AssetIDs[token]
		data, ok := response[id]
		if !ok {
			return nil, fmt.Errorf("no price returned for %s (%s)", id, token.Hex())
		}
		if !data.USD.IsPositive() {
			return nil, fmt.Errorf("non-positive price %s for %s", data.USD, id)
		}
		prices[token] = data.USD
		c.logger.Debug("price fetched", "asset", id, "usd", data.USD, "updatedAt", time.Unix(data.LastUpdated, 0))
	}
	return prices, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	fullURL := endpoint
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	return retry.DoVoid(ctx, c.retryConfig, retry.IsRetryable, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.doSingleRequest(ctx, fullURL, result)
	})
}

func (c *Client) doSingleRequest(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return retry.After(fmt.Errorf("rate limited (HTTP 429)"), retryAfter(resp.Header))
	}
	if resp.StatusCode >= 500 {
		return retry.After(fmt.Errorf("server error (HTTP %d)", resp.StatusCode), retryAfter(resp.Header))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr coinGeckoError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return retry.Permanent(fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, apiErr.Error))
		}
		return retry.Permanent(fmt.Errorf("client error (HTTP %d): %s", resp.StatusCode, string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return retry.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

// retryAfter reads a Retry-After header given in seconds. HTTP dates and
// garbage yield zero.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
