package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

// MemTxnStore is an in-memory TxnWriter used by importer and accounting
// tests so they don't need a live Postgres instance.
type MemTxnStore struct {
	mu         sync.Mutex
	imported   map[string]bool
	ImportJobs map[string]uuid.UUID
	Blocks     map[uint64]BlockImport
	maxRound   uint64
	haveBlock  bool
}

// NewMemTxnStore creates an empty MemTxnStore.
func NewMemTxnStore() *MemTxnStore {
	return &MemTxnStore{
		imported:   make(map[string]bool),
		ImportJobs: make(map[string]uuid.UUID),
		Blocks:     make(map[uint64]BlockImport),
	}
}

func (m *MemTxnStore) IsImported(ctx context.Context, archivePath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.imported[archivePath], nil
}

func (m *MemTxnStore) ImportBlock(ctx context.Context, block BlockImport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Blocks[block.Round] = block
	if !m.haveBlock || block.Round > m.maxRound {
		m.maxRound = block.Round
		m.haveBlock = true
	}
	return nil
}

func (m *MemTxnStore) MarkImported(ctx context.Context, archivePath string, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imported[archivePath] = true
	m.ImportJobs[archivePath] = jobID
	return nil
}

func (m *MemTxnStore) LatestRound(ctx context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxRound, m.haveBlock, nil
}

func (m *MemTxnStore) BlockHeader(ctx context.Context, round uint64) (chain.BlockHeader, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.Blocks[round]
	if !ok {
		return chain.BlockHeader{}, false, nil
	}
	h, err := chain.DecodeBlockHeader(block.HeaderMsgpack)
	if err != nil {
		return chain.BlockHeader{}, false, err
	}
	return h, true, nil
}

func (m *MemTxnStore) Transactions(ctx context.Context, round uint64) ([]chain.SignedTxn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	block, ok := m.Blocks[round]
	if !ok {
		return nil, nil
	}
	out := make([]chain.SignedTxn, 0, len(block.Txns))
	for _, t := range block.Txns {
		stxn, err := chain.DecodeSignedTxn(t.TxnBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, stxn)
	}
	return out, nil
}

// MemLedgerStore is an in-memory LedgerWriter used by accounting tests.
type MemLedgerStore struct {
	mu           sync.Mutex
	accountRound *int64

	Accounts      map[chain.Address]int64
	AccountData   map[chain.Address]map[string]interface{}
	Assets        map[uint64]AcfgUpdate
	Holdings      map[AssetHolding]int64
	Frozen        map[AssetHolding]bool
	HoldingExists map[AssetHolding]bool
}

// NewMemLedgerStore creates an empty MemLedgerStore.
func NewMemLedgerStore() *MemLedgerStore {
	return &MemLedgerStore{
		Accounts:      make(map[chain.Address]int64),
		AccountData:   make(map[chain.Address]map[string]interface{}),
		Assets:        make(map[uint64]AcfgUpdate),
		Holdings:      make(map[AssetHolding]int64),
		Frozen:        make(map[AssetHolding]bool),
		HoldingExists: make(map[AssetHolding]bool),
	}
}

func (m *MemLedgerStore) AccountRound(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountRound == nil {
		return 0, false, nil
	}
	return *m.accountRound, true, nil
}

func (m *MemLedgerStore) BootstrapGenesis(ctx context.Context, allocs []GenesisAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range allocs {
		m.Accounts[a.Addr] = int64(a.Microalgos)
	}
	round := int64(-1)
	m.accountRound = &round
	return nil
}

func (m *MemLedgerStore) CommitRound(ctx context.Context, round uint64, batch RoundBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := int64(-1)
	if m.accountRound != nil {
		prev = *m.accountRound
	}
	if want := NextRound(prev); round != want {
		return fmt.Errorf("%w: committing round %d onto watermark %d (want %d)", chain.ErrWatermarkAdvance, round, prev, want)
	}

	for addr, delta := range batch.AlgoUpdates {
		m.Accounts[addr] += delta
	}
	for _, u := range batch.AcfgUpdates {
		m.Assets[u.AssetID] = u
	}
	for h, delta := range batch.AssetUpdates {
		if !m.HoldingExists[h] {
			m.HoldingExists[h] = true
			m.Frozen[h] = batch.DefaultFrozen[h.AssetID]
		}
		m.Holdings[h] += delta
	}
	for h, frozen := range batch.FreezeUpdates {
		if !m.HoldingExists[h] {
			m.HoldingExists[h] = true
			m.Holdings[h] = 0
		}
		m.Frozen[h] = frozen
	}
	for _, c := range batch.AssetCloses {
		holderKey := AssetHolding{Addr: c.Holder, AssetID: c.AssetID}
		closeKey := AssetHolding{Addr: c.CloseTo, AssetID: c.AssetID}
		remaining := m.Holdings[holderKey]
		if !m.HoldingExists[closeKey] {
			m.HoldingExists[closeKey] = true
			m.Frozen[closeKey] = false
		}
		m.Holdings[closeKey] += remaining
		delete(m.Holdings, holderKey)
		delete(m.HoldingExists, holderKey)
		delete(m.Frozen, holderKey)
	}

	r := int64(round)
	m.accountRound = &r
	return nil
}
