// Command loader runs the LoadPipeline (C3): it streams sealed archives
// into the transaction store exactly once each. Grounded on
// account-balance-processor/go/main.go's flag/config startup shape.
package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/config"
	"github.com/withobsrvr/algorand-ledger-core/internal/importer"
	"github.com/withobsrvr/algorand-ledger-core/internal/logging"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/store"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config YAML file")
	tarDir := flag.String("tar-dir", "", "directory of sealed archives to import (overrides config)")
	genesisFile := flag.String("genesis", "", "path to genesis.json, logged for operator visibility (overrides config)")
	flag.Parse()

	logger, err := logging.New("loader", version)
	if err != nil {
		panic("loader: failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}
	dir := *tarDir
	if dir == "" {
		dir = cfg.Archiver.TarDir
	}
	genesisPath := *genesisFile
	if genesisPath == "" {
		genesisPath = cfg.Loader.GenesisFile
	}
	if genesisPath != "" {
		if genesis, err := chain.LoadGenesisFile(genesisPath); err != nil {
			logger.Warn("failed to read genesis file for logging", zap.String("path", genesisPath), zap.Error(err))
		} else {
			logger.Info("genesis identity", zap.String("id", genesis.ID), zap.String("network", genesis.Network))
		}
	}

	db, err := store.Open(cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer db.Close()

	reg := metrics.New("loader")
	pipeline := importer.New(store.NewPostgresTxnStore(db), logger, reg)

	go metrics.ServeOps(logger, cfg.HealthPort, cfg.MetricsPort)

	summary, err := pipeline.Import(context.Background(), dir)
	if err != nil {
		logger.Fatal("import failed", zap.Error(err), zap.Int("blocks_imported", summary.Blocks), zap.Int("txns_imported", summary.Txns))
	}
	logger.Info("import summary",
		zap.Int("blocks", summary.Blocks),
		zap.Int("txns", summary.Txns),
		zap.Duration("duration", summary.Duration))
}
