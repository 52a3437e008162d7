package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tolelom/tolmarket/wallet"
)

// passwordEnv names the variable holding the keystore password. Flags would
// leak it through the process list.
const passwordEnv = "MARKET_PASSWORD"

var keyPath string

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate an ed25519 identity and write it to an encrypted keystore",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(keyPath); err == nil {
			return fmt.Errorf("%s already exists", keyPath)
		}
		w, err := wallet.Generate(conf.ChainID)
		if err != nil {
			return err
		}
		if err := wallet.SaveKey(keyPath, password(cmd), w.PrivKey()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "identity: %s\nkeystore: %s\n", w.Identity(), keyPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "operator.key", "path to keystore file")
	rootCmd.AddCommand(genkeyCmd)
}

func password(cmd *cobra.Command) string {
	pw := os.Getenv(passwordEnv)
	if pw == "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: %s not set; keystore uses an empty password\n", passwordEnv)
	}
	return pw
}

func loadWallet(cmd *cobra.Command) (*wallet.Wallet, error) {
	priv, err := wallet.LoadKey(keyPath, password(cmd))
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", keyPath, err)
	}
	return wallet.New(priv, conf.ChainID), nil
}
