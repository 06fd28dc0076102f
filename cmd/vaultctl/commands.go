package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/archon-research/stl/vault-engine/internal/domain/entity"
	"github.com/archon-research/stl/vault-engine/internal/pkg/abicodec"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func blockNumberCommand() *cli.Command {
	return &cli.Command{
		Name:  "block-number",
		Usage: "print the latest block number of the read node",
		Action: func(c *cli.Context) error {
			s, err := newReadStack(c)
			if err != nil {
				return err
			}
			n, err := s.rpc.BlockNumber(c.Context)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, n)
			return err
		},
	}
}

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "print an owner's token balance",
		ArgsUsage: "<owner>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Usage: "token symbol or address", Required: true},
			&cli.StringFlag{Name: "spender", Usage: "also print the allowance granted to this address or vault name"},
		},
		Action: func(c *cli.Context) error {
			owner, err := argAddress(c, "owner")
			if err != nil {
				return err
			}
			s, err := newReadStack(c)
			if err != nil {
				return err
			}
			token, decimals, err := s.resolveToken(c.String("token"))
			if err != nil {
				return err
			}

			out := map[string]string{"token": token.Hex(), "owner": owner.Hex()}
			balance, err := s.balances.BalanceOf(c.Context, token, decimals, owner)
			if err != nil {
				return err
			}
			out["balance"] = balance.Value.String()

			if ref := c.String("spender"); ref != "" {
				spender, err := s.resolveVault(ref)
				if err != nil {
					return err
				}
				allowance, err := s.balances.Allowance(c.Context, token, decimals, owner, spender)
				if err != nil {
					return err
				}
				out["spender"] = spender.Hex()
				out["allowance"] = allowance.Value.String()
			}
			return printJSON(c.App.Writer, out)
		},
	}
}

func vaultConfigCommand() *cli.Command {
	return &cli.Command{
		Name:      "vault-config",
		Usage:     "print a vault's tokens and risk parameters",
		ArgsUsage: "<vault address or name>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one vault argument")
			}
			s, err := newReadStack(c)
			if err != nil {
				return err
			}
			vault, err := s.resolveVault(c.Args().First())
			if err != nil {
				return err
			}
			cfg, err := s.configs.FetchConfig(c.Context, vault)
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, cfg)
		},
	}
}

func positionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "positions",
		Usage:     "print every vault position of an owner with its risk metrics",
		ArgsUsage: "<owner>",
		Action: func(c *cli.Context) error {
			owner, err := argAddress(c, "owner")
			if err != nil {
				return err
			}
			s, err := newReadStack(c)
			if err != nil {
				return err
			}
			positions, err := s.positions.FetchPositions(c.Context, owner)
			if err != nil {
				return err
			}
			if positions == nil {
				positions = []entity.Position{}
			}
			return printJSON(c.App.Writer, positions)
		},
	}
}

// rawPositionsCommand sends positionsByUser without decoding it, which helps
// tell a reverted resolver apart from a malformed response.
func rawPositionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "raw-positions",
		Usage:     "print the positionsByUser calldata and the node's raw answer",
		ArgsUsage: "<owner>",
		Action: func(c *cli.Context) error {
			owner, err := argAddress(c, "owner")
			if err != nil {
				return err
			}
			s, err := newReadStack(c)
			if err != nil {
				return err
			}
			data, err := abicodec.EncodeCall(abicodec.SelectorPositionsByUser, abicodec.Address(owner))
			if err != nil {
				return err
			}

			out := map[string]any{
				"to":   s.registry.ResolverAddress().Hex(),
				"data": data,
			}
			raw, err := s.rpc.Call(c.Context, "eth_call", map[string]string{
				"to":   s.registry.ResolverAddress().Hex(),
				"data": data,
			}, "latest")

			var rpcErr *entity.RPCError
			switch {
			case err == nil:
				out["result"] = raw
			case errors.As(err, &rpcErr):
				out["error"] = map[string]any{
					"code":     rpcErr.Code,
					"message":  rpcErr.Message,
					"data":     rpcErr.Data,
					"reverted": rpcErr.IsRevert(),
				}
			default:
				return err
			}
			return printJSON(c.App.Writer, out)
		},
	}
}
