// Package archiver implements the BlockArchiver (C2): a resumable fetch
// loop that pulls raw blocks from a node, persists them as per-round files,
// and rolls fixed-size contiguous runs up into compressed archives.
// Grounded on stellar-live-source-datalake/go/server/server.go's
// StreamRawLedgers loop, generalized from a bounded one-shot gRPC stream to
// an unbounded catchup-then-idle-wait loop against a live node, and on
// obsrvr-lake/stellar-postgres-ingester/go/checkpoint.go's
// write-then-atomic-rename checkpoint pattern, applied here to archive
// sealing instead of checkpoint files.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/withobsrvr/algorand-ledger-core/internal/archive"
	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/retry"
	"go.uber.org/zap"
)

// NodeClient is the subset of nodeclient.Client the archiver depends on.
// Declared here (consumer-side) so unit tests can supply a fake without
// spinning up an HTTP server.
type NodeClient interface {
	FetchBlock(ctx context.Context, round uint64) ([]byte, error)
	WaitForBlockAfter(ctx context.Context, round uint64) (uint64, error)
}

// BlockDecoder decodes just enough of a raw block envelope to read its
// round number, for the fetch-validation step in spec.md §4.2.
type BlockDecoder func(raw []byte) (round uint64, err error)

// Config holds the archiver's tunables, mirroring spec.md §4.2's
// "Config enumerates" list.
type Config struct {
	BlockDir      string
	TarDir        string
	ArchiveStride uint64
	StallSeconds  int
}

// Archiver runs the catchup/idle-wait loop described in spec.md §4.2.
type Archiver struct {
	cfg     Config
	node    NodeClient
	decode  BlockDecoder
	logger  *zap.Logger
	metrics *metrics.Registry
	flag    *retry.SignalFlag

	stored map[uint64]struct{} // rounds currently sitting as loose files in BlockDir
}

// New constructs an Archiver. decode must be chain.DecodeBlock's round
// extractor in production; tests may substitute a stub.
func New(cfg Config, node NodeClient, decode BlockDecoder, logger *zap.Logger, reg *metrics.Registry) *Archiver {
	return &Archiver{
		cfg:     cfg,
		node:    node,
		decode:  decode,
		logger:  logger,
		metrics: reg,
		flag:    retry.NewSignalFlag(func() { os.Exit(1) }),
		stored:  make(map[uint64]struct{}),
	}
}

// Stop requests a cooperative drain; a second call hard-exits, per
// spec.md §4.2's "stop()" contract.
func (a *Archiver) Stop() {
	a.flag.Stop()
}

func (a *Archiver) blockPath(round uint64) string {
	return filepath.Join(a.cfg.BlockDir, strconv.FormatUint(round, 10))
}

// resume implements spec.md §4.2 step 1: scan blockdir, then tardir, to
// find the last contiguous round already on disk.
func (a *Archiver) resume() (uint64, error) {
	entries, err := os.ReadDir(a.cfg.BlockDir)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("%w: scanning blockdir: %v", chain.ErrStorage, err)
	}
	var max uint64
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		round, err := strconv.ParseUint(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		a.stored[round] = struct{}{}
		if !found || round > max {
			max = round
			found = true
		}
	}
	if found {
		return max, nil
	}

	bounds, err := archive.ListDir(a.cfg.TarDir)
	if err != nil {
		return 0, fmt.Errorf("%w: scanning tardir: %v", chain.ErrStorage, err)
	}
	for _, b := range bounds {
		if !found || b.Hi > max {
			max = b.Hi
			found = true
		}
	}
	if found {
		return max, nil
	}
	return 0, nil
}

// Run executes the catchup/idle-wait loop until Stop is called or ctx is
// cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	last, err := a.resume()
	if err != nil {
		return err
	}
	next := last + 1
	if last == 0 && len(a.stored) == 0 {
		// resume returns 0 both for "round 0 is on disk" and "nothing is on
		// disk"; with no loose block and no archive, round 0 is fetched first.
		bounds, err := archive.ListDir(a.cfg.TarDir)
		if err != nil {
			return fmt.Errorf("%w: scanning tardir: %v", chain.ErrStorage, err)
		}
		if len(bounds) == 0 {
			next = 0
		}
	}
	a.logger.Info("archiver resuming", zap.Uint64("last_round", last))
	lastOKTime := time.Now()

	for !a.flag.Stopped() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		advanced, err := a.catchupOnce(ctx, next)
		if err != nil {
			return err
		}
		if advanced {
			last = next
			next++
			lastOKTime = time.Now()
			continue
		}

		if err := a.idleWait(ctx, last, &lastOKTime); err != nil {
			return err
		}
	}

	a.logger.Info("archiver stopped")
	return nil
}

// catchupOnce attempts to fetch and persist exactly one round, per
// spec.md §4.2 step 2. It returns advanced=false (not an error) whenever
// the round isn't available yet, so the caller falls through to idleWait.
func (a *Archiver) catchupOnce(ctx context.Context, round uint64) (advanced bool, err error) {
	raw, err := a.node.FetchBlock(ctx, round)
	if err != nil {
		if errors.Is(err, chain.ErrConfig) {
			return false, fmt.Errorf("archiver: %w", err)
		}
		a.metrics.TransportErrors.Inc()
		a.logger.Debug("fetch not yet available", zap.Uint64("round", round), zap.Error(err))
		return false, nil
	}

	gotRound, err := a.decode(raw)
	if err != nil {
		a.logger.Warn("decode failed on fetched block, discarding", zap.Uint64("round", round), zap.Error(err))
		return false, nil
	}
	if gotRound != round {
		a.logger.Warn("unexpected round in fetched block", zap.Uint64("want", round), zap.Uint64("got", gotRound))
		return false, nil
	}

	if err := os.MkdirAll(a.cfg.BlockDir, 0755); err != nil {
		return false, fmt.Errorf("%w: creating blockdir: %v", chain.ErrStorage, err)
	}
	if err := os.WriteFile(a.blockPath(round), raw, 0644); err != nil {
		return false, fmt.Errorf("%w: writing block %d: %v", chain.ErrStorage, round, err)
	}
	a.stored[round] = struct{}{}
	a.metrics.BlocksFetched.Inc()

	if err := a.sealIfReady(); err != nil {
		return false, err
	}
	return true, nil
}

// idleWait implements spec.md §4.2 step 3: long-poll wait-after-block,
// warning (but not exiting) if the archiver has been stalled past
// StallSeconds.
func (a *Archiver) idleWait(ctx context.Context, last uint64, lastOKTime *time.Time) error {
	if a.flag.Stopped() {
		return nil
	}
	if time.Since(*lastOKTime) > time.Duration(a.cfg.StallSeconds)*time.Second {
		a.logger.Warn("archiver stalled", zap.Uint64("last_round", last), zap.Duration("since_last_ok", time.Since(*lastOKTime)))
	}
	if _, err := a.node.WaitForBlockAfter(ctx, last); err != nil {
		a.metrics.TransportErrors.Inc()
		a.logger.Warn("wait-for-block-after failed", zap.Error(err))
	}
	return nil
}

// sealIfReady implements spec.md §4.2 step 4: archive sealing.
func (a *Archiver) sealIfReady() error {
	if len(a.stored) == 0 {
		return nil
	}
	stride := a.cfg.ArchiveStride
	min := minRound(a.stored)
	lo := (min / stride) * stride
	hi := lo + stride // half-open [lo, hi)

	complete := true
	for r := lo; r < hi; r++ {
		if _, ok := a.stored[r]; !ok {
			complete = false
			break
		}
	}
	if !complete {
		return nil
	}

	entries := make([]archive.BlockEntry, 0, stride)
	for r := lo; r < hi; r++ {
		raw, err := os.ReadFile(a.blockPath(r))
		if err != nil {
			return fmt.Errorf("%w: reading block %d for sealing: %v", chain.ErrStorage, r, err)
		}
		entries = append(entries, archive.BlockEntry{Round: r, Raw: raw})
	}

	if err := os.MkdirAll(a.cfg.TarDir, 0755); err != nil {
		return fmt.Errorf("%w: creating tardir: %v", chain.ErrStorage, err)
	}
	path, err := archive.Write(a.cfg.TarDir, entries)
	if err != nil {
		return fmt.Errorf("%w: sealing archive: %v", chain.ErrStorage, err)
	}
	a.logger.Info("sealed archive", zap.String("path", path), zap.Uint64("lo", lo), zap.Uint64("hi", hi-1))
	a.metrics.BlocksArchived.Add(float64(stride))

	for r := lo; r < hi; r++ {
		if err := os.Remove(a.blockPath(r)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: deleting sealed block %d: %v", chain.ErrStorage, r, err)
		}
		delete(a.stored, r)
	}

	// discard stale blocks below the new lo bound, per spec.md §4.2 step 4.
	for r := range a.stored {
		if r < lo {
			a.logger.Warn("discarding stale block below archived floor", zap.Uint64("round", r), zap.Uint64("floor", lo))
			os.Remove(a.blockPath(r))
			delete(a.stored, r)
		}
	}
	return nil
}

func minRound(stored map[uint64]struct{}) uint64 {
	rounds := make([]uint64, 0, len(stored))
	for r := range stored {
		rounds = append(rounds, r)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] < rounds[j] })
	return rounds[0]
}
