// Package main is a command-line client for a running supervisor. Each
// command opens a remote proxy over the channel, performs one call and
// prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"solana-conn-proxy/internal/channel"
	"solana-conn-proxy/internal/proxy"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/wire"
)

type options struct {
	endpoint   string
	profile    string
	commitment string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "connctl",
		Short:        "Query Solana through a running supervisor",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.endpoint, "endpoint", envOr("CONNCTL_ENDPOINT", "ws://localhost:8899/channel"), "Supervisor channel URL")
	pf.StringVar(&o.profile, "profile", "base58", "Blob profile (base58 or binary)")
	pf.StringVar(&o.commitment, "commitment", "", "Commitment level")
	pf.DurationVar(&o.timeout, "timeout", 45*time.Second, "Overall timeout")

	cmd.AddCommand(
		o.command("balance <address>", "Print an account's lamport balance", 1,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				addr, err := solana.ParseAddress(args[0])
				if err != nil {
					return nil, err
				}
				return conn.GetBalance(ctx, addr, o.level())
			}),
		o.command("blockhash", "Print the latest blockhash", 0,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				return conn.GetLatestBlockhashAndContext(ctx, o.level())
			}),
		o.command("slot", "Print the current slot", 0,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				return conn.GetSlot(ctx, o.level())
			}),
		o.command("block-time <slot>", "Print a slot's estimated production time", 1,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				slot, err := parseSlot(args[0])
				if err != nil {
					return nil, err
				}
				return conn.GetBlockTime(ctx, slot)
			}),
		o.command("token-accounts <wallet>", "Print a wallet's token accounts, metadata and NFTs", 1,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				wallet, err := solana.ParseAddress(args[0])
				if err != nil {
					return nil, err
				}
				return conn.CustomSplTokenAccounts(ctx, wallet)
			}),
		o.command("account <address>", "Print account info", 1,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				addr, err := solana.ParseAddress(args[0])
				if err != nil {
					return nil, err
				}
				return conn.GetAccountInfoAndContext(ctx, addr, o.level())
			}),
		o.command("confirm <signature>", "Wait for a transaction to be confirmed", 1,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				return conn.ConfirmTransaction(ctx, args[0], o.level())
			}),
		o.command("call <method> [json-arg...]", "Invoke any supported method with raw JSON arguments", -1,
			func(ctx context.Context, conn *proxy.Connection, args []string) (any, error) {
				params := make([]any, 0, len(args)-1)
				for i, a := range args[1:] {
					var v json.RawMessage
					if err := json.Unmarshal([]byte(a), &v); err != nil {
						return nil, fmt.Errorf("argument %d: %w", i+1, err)
					}
					params = append(params, v)
				}
				return conn.Invoke(ctx, args[0], params...)
			}),
	)
	return cmd
}

// command builds a subcommand that runs fn against a fresh connection.
// nargs < 0 means at least one argument.
func (o *options) command(use, short string, nargs int, fn func(context.Context, *proxy.Connection, []string) (any, error)) *cobra.Command {
	args := cobra.ExactArgs(nargs)
	if nargs < 0 {
		args = cobra.MinimumNArgs(1)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()

			conn, err := o.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			out, err := fn(ctx, conn, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func (o *options) dial(ctx context.Context) (*proxy.Connection, error) {
	codec, err := wire.CodecFor(o.profile)
	if err != nil {
		return nil, err
	}
	client, err := channel.NewWSClient(ctx, o.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", o.endpoint, err)
	}
	return proxy.New(client, codec), nil
}

func (o *options) level() solana.Commitment {
	return solana.Commitment(o.commitment)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseSlot(s string) (uint64, error) {
	slot, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q: %w", s, err)
	}
	return slot, nil
}
