package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tolelom/tolmarket/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "marketd",
		Short: "NFT marketplace engine",

		// All child commands share the .env file, config and signal context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			var err error
			conf, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			cobra.OnFinalize(stop)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	conf    *config.Config
	cfgFile string
	envFile string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before MARKET_* overrides are read")
}
