// Package validator implements the AccountingValidator (C5): it
// cross-checks the ledger projection against an authoritative node over
// paginated HTTP, using a bounded worker pool. Grounded on
// stellar-live-source-datalake/go/server/server.go's worker-pool-over-a-
// bounded-channel shape (there used to fan out archive-file reads; here
// generalized to fan out account comparisons), with the pool itself built
// on golang.org/x/sync/errgroup per spec.md §4.5's redesign note.
package validator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/nodeclient"
	"github.com/withobsrvr/algorand-ledger-core/internal/store"
	"go.uber.org/zap"
)

// NodeClient is the subset of nodeclient.Client the validator needs.
type NodeClient interface {
	FetchAccount(ctx context.Context, addr string, round uint64) (nodeclient.Account, error)
}

// Filters bounds one Validate call, per spec.md §4.5's public operation.
type Filters struct {
	Addresses          []chain.Address // if non-empty, only these addresses are checked; shard/cursor are ignored
	ShardIndex         int
	ShardCount         int // 1 means "no sharding"
	Cursor             chain.Address
	Threads            int
	MaxMismatchDetails int
	Round              uint64 // the round to pin the comparison at
	PageSize           int    // default 500, per spec.md §4.5 step 1
}

// FieldMismatch is one field-level disagreement for one address. Multiple
// mismatches on the same address are recorded independently, per spec.md
// §4.5 step 3.
type FieldMismatch struct {
	Address chain.Address
	Field   string
	Indexer interface{}
	Node    interface{}
}

// Report is the outcome of one Validate call.
type Report struct {
	Scanned       int
	Exempt        int
	Mismatches    []FieldMismatch
	Transcripts   map[chain.Address][]store.TxnRef // only populated up to MaxMismatchDetails addresses
	NextCursor    chain.Address
	HasNextCursor bool
}

// Validator is the AccountingValidator (C5).
type Validator struct {
	indexer store.IndexerReader
	node    NodeClient
	params  chain.ChainParams
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New constructs a Validator comparing indexer against node. params
// supplies the fee-sink/rewards-pool addresses exempted from failure
// counting per spec.md §4.5 step 4.
func New(indexer store.IndexerReader, node NodeClient, params chain.ChainParams, logger *zap.Logger, reg *metrics.Registry) *Validator {
	return &Validator{indexer: indexer, node: node, params: params, logger: logger, metrics: reg}
}

func (f Filters) pageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return 500
}

func (f Filters) threads() int {
	if f.Threads > 0 {
		return f.Threads
	}
	return 1
}

func (f Filters) shardCount() int {
	if f.ShardCount > 0 {
		return f.ShardCount
	}
	return 1
}

// Validate runs the full scan described by spec.md §4.5: enumerate
// accounts (or just filters.Addresses), compare each against the node at
// a pinned round using a bounded worker pool, and return every mismatch
// found plus a compact transcript for up to filters.MaxMismatchDetails of
// them.
func (v *Validator) Validate(ctx context.Context, filters Filters) (Report, error) {
	accounts, nextCursor, hasNext, err := v.gatherAccounts(ctx, filters)
	if err != nil {
		return Report{}, err
	}

	var (
		mu     sync.Mutex
		report = Report{Transcripts: make(map[chain.Address][]store.TxnRef)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(filters.threads())

	for _, acct := range accounts {
		acct := acct
		g.Go(func() error {
			mismatches, exempt, err := v.compareAccount(gctx, acct, filters.Round)
			if err != nil {
				v.logger.Warn("validator: comparing account failed", zap.String("addr", acct.Addr.String()), zap.Error(err))
				v.metrics.TransportErrors.Inc()
				return nil // transport failures are logged and counted, not fatal, per spec.md §7
			}

			mu.Lock()
			defer mu.Unlock()
			report.Scanned++
			if exempt {
				report.Exempt++
				return nil
			}
			if len(mismatches) == 0 {
				return nil
			}
			report.Mismatches = append(report.Mismatches, mismatches...)
			v.metrics.Mismatches.Add(float64(len(mismatches)))
			if len(report.Transcripts) < filters.MaxMismatchDetails {
				txns, err := v.indexer.RecentParticipation(gctx, acct.Addr, 30)
				if err != nil {
					v.logger.Warn("validator: fetching transcript failed", zap.String("addr", acct.Addr.String()), zap.Error(err))
				} else {
					report.Transcripts[acct.Addr] = txns
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report.NextCursor = nextCursor
	report.HasNextCursor = hasNext
	return report, nil
}

// gatherAccounts resolves filters into the concrete account list to
// compare: either the explicit address list, or every account in the
// indexer's listing, read page by page, whose address prefix falls in the
// selected shard.
func (v *Validator) gatherAccounts(ctx context.Context, filters Filters) ([]store.IndexerAccount, chain.Address, bool, error) {
	if len(filters.Addresses) > 0 {
		var out []store.IndexerAccount
		for _, addr := range filters.Addresses {
			acct, ok, err := v.indexer.Account(ctx, addr)
			if err != nil {
				return nil, chain.Address{}, false, err
			}
			if ok {
				out = append(out, acct)
			}
		}
		return out, chain.Address{}, false, nil
	}

	lo, hi, hasHi, err := ShardBounds(filters.ShardIndex, filters.shardCount())
	if err != nil {
		return nil, chain.Address{}, false, err
	}

	var out []store.IndexerAccount
	cursor := filters.Cursor
	for {
		page, more, err := v.indexer.ListAccountsPage(ctx, cursor, filters.pageSize())
		if err != nil {
			return nil, chain.Address{}, false, err
		}
		if len(page) == 0 {
			return out, cursor, false, nil
		}

		for _, acct := range page {
			prefix := AddressPrefix(acct.Addr)
			cursor = acct.Addr
			if prefix < lo || (hasHi && prefix >= hi) {
				continue
			}
			out = append(out, acct)
		}
		if !more {
			return out, cursor, false, nil
		}
	}
}

// There is no list of indexer-only provenance fields to ignore
// (created-at-round, deleted, ...): neither store.IndexerAccount nor
// nodeclient.Account carries them, so compareAccount never sees them and
// there is nothing to strip.

func (v *Validator) compareAccount(ctx context.Context, acct store.IndexerAccount, round uint64) (mismatches []FieldMismatch, exempt bool, err error) {
	if acct.Addr == v.params.FeeSink || acct.Addr == v.params.RewardsPool {
		return nil, true, nil
	}

	addrStr, err := chain.EncodeAddress(acct.Addr[:])
	if err != nil {
		return nil, false, err
	}
	node, err := v.node.FetchAccount(ctx, addrStr, round)
	if err != nil {
		return nil, false, err
	}
	if node.Round != round {
		v.logger.Warn("validator: node returned a different round than requested, skipping comparison",
			zap.String("addr", addrStr), zap.Uint64("requested", round), zap.Uint64("got", node.Round))
		return nil, false, nil
	}

	// Precedence 1: microalgos without pending rewards.
	if acct.Microalgos != node.Amount {
		mismatches = append(mismatches, FieldMismatch{Addr(acct.Addr), "microalgos", acct.Microalgos, node.Amount})
	}

	// Precedence 2: asset holding set, by asset id, comparing amount.
	// Indexer rows with a zero amount where the node has none are not a
	// mismatch (spec.md §4.5 step 3).
	nodeHoldings := make(map[uint64]nodeclient.AccountAsset, len(node.Assets))
	for _, a := range node.Assets {
		nodeHoldings[a.AssetID] = a
	}
	seenHolding := make(map[uint64]bool, len(acct.Holdings))
	for _, h := range acct.Holdings {
		seenHolding[h.AssetID] = true
		na, ok := nodeHoldings[h.AssetID]
		if !ok {
			if h.Amount == 0 {
				continue
			}
			mismatches = append(mismatches, FieldMismatch{Addr(acct.Addr), fmt.Sprintf("asset_holding[%d]", h.AssetID), h.Amount, uint64(0)})
			continue
		}
		if h.Amount != na.Amount {
			mismatches = append(mismatches, FieldMismatch{Addr(acct.Addr), fmt.Sprintf("asset_holding[%d].amount", h.AssetID), h.Amount, na.Amount})
		}
	}
	for id, na := range nodeHoldings {
		if seenHolding[id] {
			continue
		}
		mismatches = append(mismatches, FieldMismatch{Addr(acct.Addr), fmt.Sprintf("asset_holding[%d]", id), uint64(0), na.Amount})
	}

	// Precedence 3: created-assets set, filtering indexer rows whose
	// params.total == 0 (a destroyed-asset tombstone, see DESIGN.md).
	nodeCreated := make(map[uint64]bool, len(node.CreatedAsa))
	for _, ca := range node.CreatedAsa {
		nodeCreated[ca.AssetID] = true
	}
	seenCreated := make(map[uint64]bool, len(acct.CreatedAssets))
	for _, ca := range acct.CreatedAssets {
		if ca.Params.Total == 0 {
			continue // destroyed-asset tombstone, not a live created asset
		}
		seenCreated[ca.AssetID] = true
		if !nodeCreated[ca.AssetID] {
			mismatches = append(mismatches, FieldMismatch{Addr(acct.Addr), fmt.Sprintf("created_asset[%d]", ca.AssetID), true, false})
		}
	}
	for id := range nodeCreated {
		if seenCreated[id] {
			continue
		}
		mismatches = append(mismatches, FieldMismatch{Addr(acct.Addr), fmt.Sprintf("created_asset[%d]", id), false, true})
	}

	return mismatches, false, nil
}

// Addr is a tiny helper so FieldMismatch literals in compareAccount read positionally
// without repeating the field name.
func Addr(a chain.Address) chain.Address { return a }
