// Command archiver runs the BlockArchiver (C2): it pulls raw blocks from
// an algod node and seals them into fixed-size compressed archives.
// Grounded on account-balance-processor/go/main.go's flag-then-config
// startup shape and silver-realtime-transformer/go/main.go's
// signal.Notify-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/withobsrvr/algorand-ledger-core/internal/archiver"
	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/config"
	"github.com/withobsrvr/algorand-ledger-core/internal/logging"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/nodeclient"
)

var version = "dev"

func decodeRound(raw []byte) (uint64, error) {
	blk, err := chain.DecodeBlock(raw)
	if err != nil {
		return 0, err
	}
	return uint64(blk.Round), nil
}

func main() {
	configPath := flag.String("config", "", "path to config YAML file")
	flag.Parse()

	logger, err := logging.New("archiver", version)
	if err != nil {
		panic("archiver: failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	reg := metrics.New("archiver")
	node := nodeclient.New(cfg.Node.Address, cfg.Node.Token, logger, nodeclient.WithExtraHeaders(cfg.Node.ExtraHeaders))

	a := archiver.New(archiver.Config{
		BlockDir:      cfg.Archiver.BlockDir,
		TarDir:        cfg.Archiver.TarDir,
		ArchiveStride: cfg.Archiver.ArchiveStride,
		StallSeconds:  cfg.Archiver.StallSeconds,
	}, node, decodeRound, logger, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, requesting drain")
		a.Stop()
		<-sigCh // a second signal escalates via SignalFlag's hard-exit callback
		a.Stop()
	}()

	go metrics.ServeOps(logger, cfg.HealthPort, cfg.MetricsPort)

	if err := a.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("archiver exited with error", zap.Error(err))
	}
	logger.Info("archiver stopped cleanly")
}
