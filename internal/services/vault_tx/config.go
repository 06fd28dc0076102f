package vault_tx

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
)

// Config holds configuration for an Orchestrator.
type Config struct {
	// MinHealthFactor is the floor a borrow or withdraw must stay above.
	MinHealthFactor decimal.Decimal

	// ReceiptPollInterval is the wait between receipt lookups.
	ReceiptPollInterval time.Duration

	// ReceiptPollAttempts bounds how many times a receipt is polled.
	ReceiptPollAttempts int

	// Journal, when set, records every submitted transaction.
	Journal outbound.TransactionJournal

	// Metrics is optional.
	Metrics outbound.MetricsRecorder

	// OnTransition is called synchronously on every state change.
	OnTransition func(entity.TransactionState)

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MinHealthFactor:     decimal.RequireFromString("1.1"),
		ReceiptPollInterval: 2 * time.Second,
		ReceiptPollAttempts: 90,
		Logger:              slog.Default(),
	}
}

func applyDefaults(config *Config, defaults Config) {
	if config.MinHealthFactor.IsZero() {
		config.MinHealthFactor = defaults.MinHealthFactor
	}
	if config.ReceiptPollInterval == 0 {
		config.ReceiptPollInterval = defaults.ReceiptPollInterval
	}
	if config.ReceiptPollAttempts == 0 {
		config.ReceiptPollAttempts = defaults.ReceiptPollAttempts
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Signer    outbound.Signer
	Receipts  outbound.ReceiptFetcher
	Balances  outbound.BalanceReader
	Configs   outbound.VaultConfigReader
	Positions outbound.PositionReader
	Tokens    outbound.TokenRegistry

	// Prices gates borrows and withdrawals on the projected health factor.
	// It should be uncached so a move since the last read cannot slip through.
	Prices outbound.PriceOracle
}
