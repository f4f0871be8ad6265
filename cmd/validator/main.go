// Command validator runs the AccountingValidator (C5): it cross-checks
// the ledger projection against an authoritative node and exits non-zero
// if any mismatch survives the fee-sink/rewards-pool exemption, per
// spec.md §8 scenario 6. Grounded on
// account-balance-processor/go/main.go's flag/config startup shape.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/config"
	"github.com/withobsrvr/algorand-ledger-core/internal/logging"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/nodeclient"
	"github.com/withobsrvr/algorand-ledger-core/internal/store"
	"github.com/withobsrvr/algorand-ledger-core/internal/validator"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config YAML file")
	shardSpec := flag.String("shard", "", "shard spec \"a/b\" (1-indexed, overrides config)")
	addresses := flag.String("addresses", "", "comma-separated address list (overrides shard scanning)")
	threads := flag.Int("threads", 0, "worker pool size (overrides config)")
	round := flag.Uint64("round", 0, "round to pin the comparison at (0 = indexer's current watermark)")
	flag.Parse()

	logger, err := logging.New("validator", version)
	if err != nil {
		panic("validator: failed to initialize logger: " + err.Error())
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
		logger.Fatal("loading genesis file", zap.Error(err))
	}
	params, err := genesis.ChainParams()
	if err != nil {
		logger.Fatal("deriving chain params from genesis", zap.Error(err))
	}

	db, err := store.Open(cfg.PostgresDSN())
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer db.Close()

	reg := metrics.New("validator")
	node := nodeclient.New(cfg.Node.Address, cfg.Node.Token, logger, nodeclient.WithExtraHeaders(cfg.Node.ExtraHeaders))
	ledger := store.NewPostgresLedgerStore(db)
	v := validator.New(ledger, node, params, logger, reg)

	filters := validator.Filters{
		Threads:            cfg.Validator.Threads,
		MaxMismatchDetails: cfg.Validator.MaxMismatches,
		PageSize:           cfg.Validator.PageSize,
	}
	if *threads > 0 {
		filters.Threads = *threads
	}

	shard := *shardSpec
	if shard == "" {
		shard = cfg.Validator.Shard
	}
	a, b, err := config.ParseShard(shard)
	if err != nil {
		logger.Fatal("parsing shard spec", zap.Error(err))
	}
	filters.ShardCount = int(b)
	if a > 0 {
		filters.ShardIndex = int(a - 1) // ParseShard is 1-indexed, Filters is 0-indexed
	}

	addrList := *addresses
	if addrList == "" && len(cfg.Validator.Addresses) > 0 {
		addrList = strings.Join(cfg.Validator.Addresses, ",")
	}
	if addrList != "" {
		for _, s := range strings.Split(addrList, ",") {
			raw, err := chain.DecodeAddress(strings.TrimSpace(s))
			if err != nil {
				logger.Fatal("parsing address", zap.String("address", s), zap.Error(err))
			}
			filters.Addresses = append(filters.Addresses, chain.Address(raw))
		}
	}

	filters.Round = *round
	if filters.Round == 0 {
		watermark, ok, err := ledger.AccountRound(context.Background())
		if err != nil {
			logger.Fatal("reading ledger watermark", zap.Error(err))
		}
		if !ok || watermark < 0 {
			logger.Fatal("ledger has no committed round to validate against")
		}
		filters.Round = uint64(watermark)
	}

	go metrics.ServeOps(logger, cfg.HealthPort, cfg.MetricsPort)

	report, err := v.Validate(context.Background(), filters)
	if err != nil {
		logger.Fatal("validation run failed", zap.Error(err))
	}

	logger.Info("validation complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("exempt", report.Exempt),
		zap.Int("mismatches", len(report.Mismatches)),
		zap.Uint64("round", filters.Round))

	for _, m := range report.Mismatches {
		logger.Error("mismatch",
			zap.String("address", m.Address.String()),
			zap.String("field", m.Field),
			zap.Any("indexer", m.Indexer),
			zap.Any("node", m.Node))
		if txns, ok := report.Transcripts[m.Address]; ok {
			for _, t := range txns {
				logger.Info("transcript",
					zap.String("address", m.Address.String()),
					zap.Uint64("round", t.Round),
					zap.Int("intra", t.Intra))
			}
		}
	}

	if len(report.Mismatches) > 0 {
		os.Exit(1)
	}
}
