package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/memory"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/postgres"
	"github.com/archon-research/stl/vault-engine/internal/adapters/outbound/rpcsigner"
	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/ports/outbound"
	"github.com/archon-research/stl/vault-engine/internal/services/vault_tx"
)

func txFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "owner", Usage: "account that signs and owns the position", Required: true, EnvVars: []string{"VAULT_OWNER"}},
		&cli.StringFlag{Name: "vault", Usage: "vault address or registry name", Required: true},
		&cli.StringFlag{Name: "nft-id", Usage: "position NFT id; omit to open a new position", Value: "0"},
		&cli.StringFlag{Name: "collateral", Usage: "collateral amount in token units", Value: "0"},
		&cli.StringFlag{Name: "debt", Usage: "debt amount in token units", Value: "0"},
		&cli.StringFlag{Name: "signer-url", Usage: "node holding the owner's key (defaults to --rpc-url)", EnvVars: []string{"SIGNER_URL"}},
		&cli.StringFlag{Name: "database-url", Usage: "Postgres URL for the transaction journal; in-memory when empty", EnvVars: []string{"DATABASE_URL"}},
		&cli.StringFlag{Name: "min-health-factor", Usage: "health factor a borrow or withdraw must stay above"},
		&cli.DurationFlag{Name: "poll-interval", Usage: "wait between receipt lookups", Value: 2 * time.Second},
		&cli.IntFlag{Name: "poll-attempts", Usage: "receipt lookups before giving up", Value: 90},
	}
}

func txCommand(name string, op entity.OperationKind, usage string) *cli.Command {
	return &cli.Command{
		Name:   name,
		Usage:  usage,
		Flags:  txFlags(),
		Action: func(c *cli.Context) error { return runTx(c, op) },
	}
}

func runTx(c *cli.Context, op entity.OperationKind) error {
	s, err := newReadStack(c)
	if err != nil {
		return err
	}
	logger := s.logger

	owner, err := parseAddress("owner", c.String("owner"))
	if err != nil {
		return err
	}
	vault, err := s.resolveVault(c.String("vault"))
	if err != nil {
		return err
	}
	nftID, ok := new(big.Int).SetString(c.String("nft-id"), 10)
	if !ok {
		return fmt.Errorf("invalid nft id %q", c.String("nft-id"))
	}

	cfg, err := s.configs.FetchConfig(c.Context, vault)
	if err != nil {
		return fmt.Errorf("reading vault config: %w", err)
	}
	collateral, err := parseAmount(s, "collateral", c.String("collateral"), cfg.CollateralToken)
	if err != nil {
		return err
	}
	debt, err := parseAmount(s, "debt", c.String("debt"), cfg.DebtToken)
	if err != nil {
		return err
	}
	req, err := entity.NewBorrowRequest(collateral, debt, owner, vault, nftID)
	if err != nil {
		return err
	}

	signerURL := c.String("signer-url")
	if signerURL == "" {
		signerURL = c.String("rpc-url")
	}
	// No fallback: a retried eth_sendTransaction could broadcast twice.
	signerRPC, err := ethrpc.NewClient(ethrpc.ClientConfig{PrimaryURL: signerURL, Logger: logger})
	if err != nil {
		return fmt.Errorf("creating signer rpc client: %w", err)
	}
	signer, err := rpcsigner.New(signerRPC, logger)
	if err != nil {
		return err
	}

	journal, closeJournal, err := openJournal(c.Context, c.String("database-url"), logger)
	if err != nil {
		return err
	}
	defer closeJournal()
	captured := &capturingJournal{TransactionJournal: journal}

	config := vault_tx.Config{
		ReceiptPollInterval: c.Duration("poll-interval"),
		ReceiptPollAttempts: c.Int("poll-attempts"),
		Journal:             captured,
		Logger:              logger,
		OnTransition: func(st entity.TransactionState) {
			fmt.Fprintf(c.App.ErrWriter, "%s: %s\n", op, st)
		},
	}
	if v := c.String("min-health-factor"); v != "" {
		if config.MinHealthFactor, err = decimal.NewFromString(v); err != nil {
			return fmt.Errorf("invalid min health factor %q: %w", v, err)
		}
	}

	orch, err := vault_tx.New(config, s.txDeps(signer))
	if err != nil {
		return err
	}

	var final entity.TransactionState
	switch op {
	case entity.OpBorrow:
		final, err = orch.Borrow(c.Context, req)
	case entity.OpAddCollateral:
		final, err = orch.AddCollateral(c.Context, req)
	case entity.OpRepay:
		final, err = orch.Repay(c.Context, req)
	case entity.OpWithdraw:
		final, err = orch.Withdraw(c.Context, req)
	case entity.OpClose:
		final, err = orch.Close(c.Context, req)
	default:
		return fmt.Errorf("unknown operation %q", op)
	}

	if printErr := printJSON(c.App.Writer, txResult(final, captured.recorded())); printErr != nil {
		return printErr
	}
	var partial *vault_tx.PartialCloseError
	if errors.As(err, &partial) {
		return cli.Exit(err.Error(), 2)
	}
	return err
}

// txDeps wires the orchestrator. Risk checks price through the oracle
// directly rather than the read-side cache.
func (s *readStack) txDeps(signer outbound.Signer) vault_tx.Deps {
	return vault_tx.Deps{
		Signer:    signer,
		Receipts:  s.rpc,
		Balances:  s.balances,
		Configs:   s.configs,
		Positions: s.positions,
		Tokens:    s.registry,
		Prices:    s.oracle,
	}
}

func parseAmount(s *readStack, field, value string, token common.Address) (entity.TokenAmount, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return entity.TokenAmount{}, fmt.Errorf("invalid %s amount %q: %w", field, value, err)
	}
	decimals, err := s.registry.Decimals(token)
	if err != nil {
		return entity.TokenAmount{}, fmt.Errorf("%s token: %w", field, err)
	}
	return entity.NewTokenAmount(amount, decimals), nil
}

func openJournal(ctx context.Context, url string, logger *slog.Logger) (outbound.TransactionJournal, func(), error) {
	if url == "" {
		return memory.NewJournal(), func() {}, nil
	}
	pool, repo, err := openRepository(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("journaling transactions to postgres")
	return repo, pool.Close, nil
}

func openRepository(ctx context.Context, url string) (*pgxpool.Pool, *postgres.JournalRepository, error) {
	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(url))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	repo, err := postgres.NewJournalRepository(pool, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensuring journal schema: %w", err)
	}
	return pool, repo, nil
}

// capturingJournal forwards to the configured journal and keeps what this
// run recorded so it can be printed.
type capturingJournal struct {
	outbound.TransactionJournal

	mu      sync.Mutex
	entries []outbound.JournalEntry
}

func (j *capturingJournal) Record(ctx context.Context, entry outbound.JournalEntry) error {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
	return j.TransactionJournal.Record(ctx, entry)
}

func (j *capturingJournal) recorded() []outbound.JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]outbound.JournalEntry(nil), j.entries...)
}

type journalView struct {
	ActionID  string `json:"actionId"`
	Operation string `json:"operation"`
	Step      string `json:"step"`
	NftID     string `json:"nftId"`
	TxHash    string `json:"txHash"`
	Succeeded bool   `json:"succeeded"`
	At        string `json:"submittedAt"`
}

func viewEntries(entries []outbound.JournalEntry) []journalView {
	out := make([]journalView, 0, len(entries))
	for _, e := range entries {
		id := "0"
		if e.NftID != nil {
			id = e.NftID.String()
		}
		out = append(out, journalView{
			ActionID:  e.ActionID.String(),
			Operation: string(e.Operation),
			Step:      string(e.Step),
			NftID:     id,
			TxHash:    e.TxHash.Hex(),
			Succeeded: e.Succeeded,
			At:        e.SubmittedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func txResult(st entity.TransactionState, entries []outbound.JournalEntry) map[string]any {
	out := map[string]any{
		"phase":        st.Phase.String(),
		"transactions": viewEntries(entries),
	}
	if st.ResultID != nil {
		out["nftId"] = st.ResultID.String()
	}
	if st.Err != nil {
		out["error"] = st.Err.Error()
	}
	return out
}

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:      "journal",
		Usage:     "list the transactions recorded for an action",
		ArgsUsage: "<action id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-url", Usage: "Postgres URL of the transaction journal", Required: true, EnvVars: []string{"DATABASE_URL"}},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one action id argument")
			}
			actionID, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid action id: %w", err)
			}
			pool, repo, err := openRepository(c.Context, c.String("database-url"))
			if err != nil {
				return err
			}
			defer pool.Close()

			entries, err := repo.ListByAction(c.Context, actionID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.App.ErrWriter, "no transactions recorded for", actionID)
			}
			return printJSON(c.App.Writer, viewEntries(entries))
		},
	}
}
