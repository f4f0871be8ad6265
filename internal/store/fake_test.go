package store

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

func addr(b byte) chain.Address {
	var a chain.Address
	a[31] = b
	return a
}

func TestMemLedgerStoreGenesisThenRound(t *testing.T) {
	ls := NewMemLedgerStore()
	ctx := context.Background()

	if _, ok, err := ls.AccountRound(ctx); err != nil || ok {
		t.Fatalf("AccountRound before genesis: ok=%v err=%v", ok, err)
	}

	if err := ls.BootstrapGenesis(ctx, []GenesisAllocation{{Addr: addr(1), Microalgos: 1000}}); err != nil {
		t.Fatalf("BootstrapGenesis: %v", err)
	}
	round, ok, err := ls.AccountRound(ctx)
	if err != nil || !ok || round != -1 {
		t.Fatalf("AccountRound after genesis = (%d, %v, %v), want (-1, true, nil)", round, ok, err)
	}
	if ls.Accounts[addr(1)] != 1000 {
		t.Fatalf("Accounts[addr(1)] = %d, want 1000", ls.Accounts[addr(1)])
	}

	err = ls.CommitRound(ctx, 1, RoundBatch{AlgoUpdates: map[chain.Address]int64{addr(1): -10}})
	if err != nil {
		t.Fatalf("CommitRound: %v", err)
	}
	round, ok, err = ls.AccountRound(ctx)
	if err != nil || !ok || round != 1 {
		t.Fatalf("AccountRound after round 1 = (%d, %v, %v)", round, ok, err)
	}
	if ls.Accounts[addr(1)] != 990 {
		t.Fatalf("Accounts[addr(1)] = %d, want 990", ls.Accounts[addr(1)])
	}
}

func TestMemLedgerStoreAssetCloseTransfersAndDeletesHolder(t *testing.T) {
	ls := NewMemLedgerStore()
	ctx := context.Background()

	holder := addr(2)
	closeTo := addr(3)
	assetID := uint64(7)

	err := ls.CommitRound(ctx, 1, RoundBatch{
		AssetUpdates:  map[AssetHolding]int64{{Addr: holder, AssetID: assetID}: 50},
		DefaultFrozen: map[uint64]bool{assetID: false},
	})
	if err != nil {
		t.Fatalf("CommitRound (fund holder): %v", err)
	}

	err = ls.CommitRound(ctx, 2, RoundBatch{
		AssetCloses: []AssetClose{{CloseTo: closeTo, AssetID: assetID, Holder: holder}},
	})
	if err != nil {
		t.Fatalf("CommitRound (close): %v", err)
	}

	holderKey := AssetHolding{Addr: holder, AssetID: assetID}
	closeKey := AssetHolding{Addr: closeTo, AssetID: assetID}
	if ls.HoldingExists[holderKey] {
		t.Fatal("holder row should be deleted after close")
	}
	if ls.Holdings[closeKey] != 50 {
		t.Fatalf("Holdings[closeKey] = %d, want 50", ls.Holdings[closeKey])
	}
}

func TestMemLedgerStoreFreezeUpdateCreatesZeroBalanceRow(t *testing.T) {
	ls := NewMemLedgerStore()
	ctx := context.Background()
	a := addr(4)
	assetID := uint64(9)

	err := ls.CommitRound(ctx, 1, RoundBatch{
		FreezeUpdates: map[AssetHolding]bool{{Addr: a, AssetID: assetID}: true},
	})
	if err != nil {
		t.Fatalf("CommitRound: %v", err)
	}

	key := AssetHolding{Addr: a, AssetID: assetID}
	if !ls.HoldingExists[key] {
		t.Fatal("freeze update should create a holding row")
	}
	if ls.Holdings[key] != 0 {
		t.Fatalf("Holdings[key] = %d, want 0", ls.Holdings[key])
	}
	if !ls.Frozen[key] {
		t.Fatal("Frozen[key] should be true")
	}
}

func TestMemTxnStoreImportFlow(t *testing.T) {
	ts := NewMemTxnStore()
	ctx := context.Background()

	if ok, err := ts.IsImported(ctx, "a.tar.zst"); err != nil || ok {
		t.Fatalf("IsImported before mark: ok=%v err=%v", ok, err)
	}
	if err := ts.ImportBlock(ctx, BlockImport{Round: 5}); err != nil {
		t.Fatalf("ImportBlock: %v", err)
	}
	if err := ts.MarkImported(ctx, "a.tar.zst", uuid.New()); err != nil {
		t.Fatalf("MarkImported: %v", err)
	}
	if ok, err := ts.IsImported(ctx, "a.tar.zst"); err != nil || !ok {
		t.Fatalf("IsImported after mark: ok=%v err=%v", ok, err)
	}
	latest, ok, err := ts.LatestRound(ctx)
	if err != nil || !ok || latest != 5 {
		t.Fatalf("LatestRound = (%d, %v, %v), want (5, true, nil)", latest, ok, err)
	}
}
