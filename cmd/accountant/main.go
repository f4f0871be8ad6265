// Command accountant runs the AccountingEngine (C4), either as a single
// catch-up pass or as a daemon that keeps re-running catch-up against new
// rounds as the LoadPipeline writes them. Grounded on
// account-balance-processor/go/main.go's flag/config startup shape and
// internal/retry.SignalFlag's shared shutdown contract.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/withobsrvr/algorand-ledger-core/internal/accounting"
	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/config"
	"github.com/withobsrvr/algorand-ledger-core/internal/logging"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/retry"
	"github.com/withobsrvr/algorand-ledger-core/internal/store"
)

var version = "dev"

const daemonPollInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config YAML file")
	maxRound := flag.Uint64("max-round", 0, "stop catch-up at this round (0 = unbounded)")
	daemon := flag.Bool("daemon", false, "keep re-running catch-up as new rounds are imported")
	flag.Parse()

	logger, err := logging.New("accountant", version)
	if err != nil {
		panic("accountant: failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}
	if cfg.Loader.GenesisFile == "" {
		logger.Fatal("loader.genesis_file (or GENESIS_FILE) must be set")
	}
	genesis, err := chain.LoadGenesisFile(cfg.Loader.GenesisFile)
	if err != nil {
		logger.Fatal("loading genesis file", zap.String("path", cfg.Loader.GenesisFile), zap.Error(err))
	}

	db, err := store.Open(cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer db.Close()

	reg := metrics.New("accountant")
	engine := accounting.New(store.NewPostgresTxnStore(db), store.NewPostgresLedgerStore(db), genesis, logger, reg)

	max := uint64(accounting.Unbounded)
	if *maxRound > 0 {
		max = *maxRound
	} else if cfg.Accounting.MaxRound > 0 {
		max = cfg.Accounting.MaxRound
	}

	go metrics.ServeOps(logger, cfg.HealthPort, cfg.MetricsPort)

	if !*daemon {
		if err := engine.CatchUp(context.Background(), max); err != nil {
			logger.Fatal("catch-up failed", zap.Error(err))
		}
		logger.Info("catch-up complete")
		return
	}

	runDaemon(logger, engine, max)
}

func runDaemon(logger *zap.Logger, engine *accounting.Engine, max uint64) {
	stopFlag := retry.NewSignalFlag(func() { os.Exit(1) })
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, requesting drain")
		stopFlag.Stop()
		<-sigCh
		stopFlag.Stop()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for !stopFlag.Stopped() {
		if err := engine.CatchUp(ctx, max); err != nil {
			logger.Error("catch-up iteration failed", zap.Error(err))
		}
		select {
		case <-time.After(daemonPollInterval):
		case <-ctx.Done():
		}
	}
	logger.Info("accountant stopped")
}
