package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/internal/logger"
	"github.com/tolelom/tolmarket/metrics"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolmarket/vm/modules/market"
	_ "github.com/tolelom/tolmarket/vm/modules/nft"
	_ "github.com/tolelom/tolmarket/vm/modules/popularity"
	_ "github.com/tolelom/tolmarket/vm/modules/signing"
	_ "github.com/tolelom/tolmarket/vm/modules/token"
	_ "github.com/tolelom/tolmarket/vm/modules/treasury"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the state database and serve JSON-RPC until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := conf.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), conf)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("close db", "err", err)
		}
	}()

	state := storage.NewStateDB(db)
	root, err := config.ApplyGenesis(cfg.Genesis, state)
	switch {
	case errors.Is(err, config.ErrGenesisApplied):
		root, err := state.ComputeRoot()
		if err != nil {
			return fmt.Errorf("state root: %w", err)
		}
		log.Info("resuming existing state", "root", root)
	case err != nil:
		return fmt.Errorf("genesis: %w", err)
	default:
		log.Info("genesis committed", "root", root, "operator", cfg.Genesis.Operator)
	}

	emitter := events.NewEmitter(log)
	engine := vm.NewEngine(cfg.ChainID, state, vm.WithEmitter(emitter), vm.WithLogger(log))
	idx := indexer.New(db, emitter, log)

	orders, err := state.OrderCount()
	if err != nil {
		return err
	}
	agreements, err := state.AgreementCount(core.PoolAgreements)
	if err != nil {
		return err
	}
	metrics.Observe(emitter, orders, agreements)
	metrics.BuildInfo.WithLabelValues(version, commit).Set(1)

	srv := rpc.NewServer(rpc.ServerConfig{
		Addr:      cfg.RPC.ListenAddr,
		AuthToken: cfg.RPC.AuthToken,
		RateLimit: cfg.RPC.RateLimit,
		RateBurst: cfg.RPC.RateBurst,
	}, rpc.NewHandler(engine, idx, log), log)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	if cfg.RPC.AuthToken == "" {
		log.Warn("rpc auth disabled; set MARKET_RPC_AUTH_TOKEN to require a bearer token")
	}
	log.Info("engine ready",
		"chain_id", cfg.ChainID,
		"storage", cfg.Storage.Engine,
		"open_orders", orders,
		"active_agreements", agreements,
		"handlers", len(vm.RegisteredTypes()),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func openDB(cfg *config.Config) (storage.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	switch cfg.Storage.Engine {
	case "bolt":
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "market.db"))
	default:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "market"))
	}
}
