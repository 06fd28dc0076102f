// Package main provides vaultctl, an operator CLI for inspecting vault
// positions and driving vault transactions through a signing node.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/env"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	logger := env.NewLogger(os.Stderr, slog.LevelWarn)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newApp(logger).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(logger *slog.Logger) *cli.App {
	return &cli.App{
		Name:    "vaultctl",
		Usage:   "inspect and operate collateralized vault positions",
		Version: fmt.Sprintf("%s (branch %s, built %s)", GitCommit, GitBranch, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "JSON-RPC endpoint used for reads",
				Value:   "http://localhost:8545",
				EnvVars: []string{"RPC_URL"},
			},
			&cli.StringFlag{
				Name:    "rpc-fallback-url",
				Usage:   "JSON-RPC endpoint retried once after a transport failure",
				EnvVars: []string{"RPC_FALLBACK_URL"},
			},
			&cli.StringFlag{
				Name:    "registry",
				Usage:   "token and vault registry file",
				Value:   "config/registry.yaml",
				EnvVars: []string{"REGISTRY_PATH"},
			},
			&cli.StringFlag{
				Name:    "coingecko-api-key",
				Usage:   "CoinGecko Pro API key; the public API is used when empty",
				EnvVars: []string{"COINGECKO_API_KEY"},
			},
		},
		Before: func(c *cli.Context) error {
			c.App.Metadata = map[string]any{"logger": logger}
			return nil
		},
		Commands: []*cli.Command{
			blockNumberCommand(),
			balanceCommand(),
			vaultConfigCommand(),
			positionsCommand(),
			rawPositionsCommand(),
			txCommand("borrow", entity.OpBorrow, "open a position or borrow against an existing one"),
			txCommand("add-collateral", entity.OpAddCollateral, "deposit collateral into a position"),
			txCommand("repay", entity.OpRepay, "repay debt of a position"),
			txCommand("withdraw", entity.OpWithdraw, "withdraw collateral from a position"),
			txCommand("close", entity.OpClose, "repay all debt and withdraw all collateral"),
			journalCommand(),
		},
	}
}

func loggerFrom(c *cli.Context) *slog.Logger {
	if l, ok := c.App.Metadata["logger"].(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
