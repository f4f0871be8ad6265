// Package importer implements the LoadPipeline (C3): it reads sealed
// archives in lexical order, decodes each block, and writes transactions,
// participation rows, and block headers into the transaction store with
// exactly-once semantics per archive. Grounded on
// contract-data-processor/consumer/postgresql/consumer.go's
// stream-then-batch-insert shape, adapted here from an Arrow Flight stream
// to a directory of archive files.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/withobsrvr/algorand-ledger-core/internal/archive"
	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/store"
	"go.uber.org/zap"
)

// Summary reports the outcome of one Import call, per spec.md §4.3's
// "summary reports (blocks, txns, duration)".
type Summary struct {
	Blocks   int
	Txns     int
	Duration time.Duration
}

// Pipeline is the LoadPipeline (C3).
type Pipeline struct {
	store   store.TxnWriter
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New constructs a Pipeline writing through w.
func New(w store.TxnWriter, logger *zap.Logger, reg *metrics.Registry) *Pipeline {
	return &Pipeline{store: w, logger: logger, metrics: reg}
}

// Import enumerates archives under tarDir matching the "<lo>_<hi>.tar.zst"
// convention, skips any already recorded in the imported table, and
// streams the rest into the transaction store in lexical lo-bound order.
func (p *Pipeline) Import(ctx context.Context, tarDir string) (Summary, error) {
	start := time.Now()
	jobID := uuid.New()
	bounds, err := archive.ListDir(tarDir)
	if err != nil {
		return Summary{}, fmt.Errorf("importer: listing archives: %w", err)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].Lo < bounds[j].Lo })

	var summary Summary
	for _, b := range bounds {
		path := filepath.Join(tarDir, b.FileName())

		already, err := p.store.IsImported(ctx, path)
		if err != nil {
			return summary, fmt.Errorf("importer: checking %s: %w", path, err)
		}
		if already {
			continue
		}

		n, err := p.importArchive(ctx, path, jobID)
		if err != nil {
			// spec.md §4.3: any decoding error aborts the current archive
			// without marking it imported, and remaining archives are not
			// attempted.
			return summary, fmt.Errorf("importer: %s: %w", path, err)
		}
		summary.Blocks += n.blocks
		summary.Txns += n.txns
	}

	summary.Duration = time.Since(start)
	p.logger.Info("import run complete",
		zap.String("job_id", jobID.String()),
		zap.Int("blocks", summary.Blocks),
		zap.Int("txns", summary.Txns),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

type archiveCounts struct {
	blocks, txns int
}

func (p *Pipeline) importArchive(ctx context.Context, path string, jobID uuid.UUID) (archiveCounts, error) {
	entries, err := archive.Read(path)
	if err != nil {
		return archiveCounts{}, fmt.Errorf("reading archive: %w", err)
	}

	var counts archiveCounts
	for _, entry := range entries {
		blk, err := chain.DecodeBlock(entry.Raw)
		if err != nil {
			return counts, fmt.Errorf("decoding block %d: %w", entry.Round, err)
		}
		if uint64(blk.Round) != entry.Round {
			return counts, fmt.Errorf("%w: archive entry %d decoded as round %d", chain.ErrUnexpectedRound, entry.Round, blk.Round)
		}

		blockImport, err := buildBlockImport(blk)
		if err != nil {
			return counts, err
		}
		if err := p.store.ImportBlock(ctx, blockImport); err != nil {
			return counts, fmt.Errorf("importing block %d: %w", blk.Round, err)
		}
		p.metrics.TxnsImported.Add(float64(len(blockImport.Txns)))
		counts.blocks++
		counts.txns += len(blockImport.Txns)
	}

	if err := p.store.MarkImported(ctx, path, jobID); err != nil {
		return counts, fmt.Errorf("marking imported: %w", err)
	}
	p.metrics.ArchivesImported.Inc()
	return counts, nil
}

// buildBlockImport implements spec.md §4.3's per-block, per-transaction
// projection: typeenum, asset_id, canonical txn bytes, structured json,
// and the deduplicated participant set.
func buildBlockImport(blk chain.Block) (store.BlockImport, error) {
	headerOnly := blk.BlockHeader
	headerBytes, err := chain.CanonicalEncodeBlockHeader(headerOnly)
	if err != nil {
		return store.BlockImport{}, fmt.Errorf("encoding block header %d: %w", blk.Round, err)
	}

	bi := store.BlockImport{
		Round:         uint64(blk.Round),
		RealTime:      time.Unix(blk.TimeStamp, 0).UTC(),
		HeaderMsgpack: headerBytes,
	}

	for intra, stxn := range blk.Payset {
		typeEnum, ok := chain.TypeEnumFor(stxn.Txn.Type)
		if !ok {
			return store.BlockImport{}, fmt.Errorf("%w: round %d intra %d type %q", chain.ErrUnknownTxType, blk.Round, intra, stxn.Txn.Type)
		}

		txnBytes, err := chain.CanonicalEncodeSignedTxn(stxn)
		if err != nil {
			return store.BlockImport{}, fmt.Errorf("encoding txn %d/%d: %w", blk.Round, intra, err)
		}
		txnJSON, err := marshalTxnJSON(stxn)
		if err != nil {
			return store.BlockImport{}, fmt.Errorf("marshaling txn %d/%d: %w", blk.Round, intra, err)
		}

		bi.Txns = append(bi.Txns, store.TxnImport{
			Intra:        intra,
			TypeEnum:     int(typeEnum),
			AssetID:      stxn.AssetID(),
			TxnBytes:     txnBytes,
			TxnJSON:      txnJSON,
			Participants: stxn.Participants(),
		})
	}

	return bi, nil
}
