package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/wallet"
)

var rpcURL string

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Invoke a JSON-RPC method and print the result",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params json.RawMessage
		if len(args) == 2 {
			params = json.RawMessage(args[1])
			if !json.Valid(params) {
				return fmt.Errorf("params are not valid JSON")
			}
		}
		var out json.RawMessage
		if err := client().Call(cmd.Context(), args[0], params, &out); err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Sign a transaction with the keystore identity and submit it",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "RPC endpoint URL (default http://<rpc.listen_addr>/)")
	rootCmd.AddCommand(callCmd, txCmd)

	txCmd.AddCommand(
		txCommand("transfer <to> <amount>", "Send payment tokens", 2, func(w *wallet.Wallet, n uint64, a []string) (*core.Transaction, error) {
			amount, err := parseUint(a[1])
			if err != nil {
				return nil, err
			}
			return w.Transfer(n, a[0], amount)
		}),
		txCommand("create-collection <name> <symbol>", "Register a collection", 2, func(w *wallet.Wallet, n uint64, a []string) (*core.Transaction, error) {
			return w.CreateCollection(n, a[0], a[1])
		}),
		txCommand("list <collection> <item-id> <price>", "Put an owned item up for sale", 3, func(w *wallet.Wallet, n uint64, a []string) (*core.Transaction, error) {
			vals, err := parseUints(a[1:])
			if err != nil {
				return nil, err
			}
			return w.List(n, a[0], vals[0], vals[1])
		}),
		txCommand("buy <collection> <item-id> <max-price>", "Buy a listed item", 3, func(w *wallet.Wallet, n uint64, a []string) (*core.Transaction, error) {
			vals, err := parseUints(a[1:])
			if err != nil {
				return nil, err
			}
			return w.Buy(n, a[0], vals[0], vals[1])
		}),
		txCommand("rebuild-leaderboard", "Recompute the popularity leaderboard", 0, func(w *wallet.Wallet, n uint64, _ []string) (*core.Transaction, error) {
			return w.RebuildLeaderboard(n)
		}),
		txCommand("withdraw", "Sweep the treasury to the operator", 0, func(w *wallet.Wallet, n uint64, _ []string) (*core.Transaction, error) {
			return w.Withdraw(n)
		}),
	)
}

type buildFunc func(w *wallet.Wallet, nonce uint64, args []string) (*core.Transaction, error)

// txCommand wraps build with keystore loading, nonce lookup and submission.
func txCommand(use, short string, nargs int, build buildFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := loadWallet(cmd)
			if err != nil {
				return err
			}
			c := client()
			acc, err := c.Account(cmd.Context(), w.Identity())
			if err != nil {
				return err
			}
			tx, err := build(w, acc.Nonce, args)
			if err != nil {
				return err
			}
			receipt, err := c.SendTx(cmd.Context(), tx)
			if err != nil {
				return err
			}
			out, err := json.Marshal(receipt)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}

func client() *rpc.Client {
	url := rpcURL
	if url == "" {
		url = "http://" + conf.RPC.ListenAddr + "/"
	}
	return rpc.NewClient(url, conf.RPC.AuthToken)
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, err)
	}
	return v, nil
}

func parseUints(ss []string) ([]uint64, error) {
	out := make([]uint64, len(ss))
	for i, s := range ss {
		v, err := parseUint(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
