package importer

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/withobsrvr/algorand-ledger-core/internal/archive"
	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/metrics"
	"github.com/withobsrvr/algorand-ledger-core/internal/store"
	"go.uber.org/zap"
)

func testAddr(b byte) chain.Address {
	var a chain.Address
	a[31] = b
	return a
}

func sampleBlock(round uint64) chain.Block {
	var blk chain.Block
	blk.Round = chain.Round(round)
	blk.TimeStamp = 1000
	blk.TxnCounter = 0

	var stxn chain.SignedTxn
	stxn.Txn.Type = chain.TxTypePayment
	stxn.Txn.Sender = testAddr(1)
	stxn.Txn.Fee = 1000
	stxn.Txn.Receiver = testAddr(2)
	stxn.Txn.Amount = 500

	blk.Payset = []chain.SignedTxn{stxn}
	return blk
}

func TestBuildBlockImport(t *testing.T) {
	blk := sampleBlock(10)
	bi, err := buildBlockImport(blk)
	if err != nil {
		t.Fatalf("buildBlockImport: %v", err)
	}
	if bi.Round != 10 {
		t.Fatalf("Round = %d, want 10", bi.Round)
	}
	if len(bi.Txns) != 1 {
		t.Fatalf("len(Txns) = %d, want 1", len(bi.Txns))
	}
	txn := bi.Txns[0]
	if txn.TypeEnum != int(chain.TypeEnumPayment) {
		t.Fatalf("TypeEnum = %d, want %d", txn.TypeEnum, chain.TypeEnumPayment)
	}
	if txn.AssetID != 0 {
		t.Fatalf("AssetID = %d, want 0 for a payment", txn.AssetID)
	}
	if len(txn.Participants) != 2 {
		t.Fatalf("Participants = %v, want 2 entries", txn.Participants)
	}
}

func TestImportSkipsAlreadyImportedArchive(t *testing.T) {
	dir := t.TempDir()
	blk := sampleBlock(0)
	envelope := mustEnvelope(t, blk)
	path, err := archive.Write(dir, []archive.BlockEntry{{Round: 0, Raw: envelope}})
	if err != nil {
		t.Fatalf("archive.Write: %v", err)
	}

	ts := store.NewMemTxnStore()
	if err := ts.MarkImported(context.Background(), path, uuid.New()); err != nil {
		t.Fatal(err)
	}

	p := New(ts, zap.NewNop(), metrics.New(t.Name()))
	summary, err := p.Import(context.Background(), dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if summary.Blocks != 0 {
		t.Fatalf("Blocks = %d, want 0 (archive already imported)", summary.Blocks)
	}
}

func TestImportWritesBlocksAndMarksImported(t *testing.T) {
	dir := t.TempDir()
	blk0 := sampleBlock(0)
	blk1 := sampleBlock(1)
	entries := []archive.BlockEntry{
		{Round: 0, Raw: mustEnvelope(t, blk0)},
		{Round: 1, Raw: mustEnvelope(t, blk1)},
	}
	path, err := archive.Write(dir, entries)
	if err != nil {
		t.Fatalf("archive.Write: %v", err)
	}

	ts := store.NewMemTxnStore()
	p := New(ts, zap.NewNop(), metrics.New(t.Name()))
	summary, err := p.Import(context.Background(), dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if summary.Blocks != 2 {
		t.Fatalf("Blocks = %d, want 2", summary.Blocks)
	}
	if summary.Txns != 2 {
		t.Fatalf("Txns = %d, want 2", summary.Txns)
	}
	imported, err := ts.IsImported(context.Background(), path)
	if err != nil || !imported {
		t.Fatalf("IsImported = %v, %v, want true, nil", imported, err)
	}
}

func mustEnvelope(t *testing.T, blk chain.Block) []byte {
	t.Helper()
	raw, err := chain.EncodeEnvelope(blk)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	return raw
}
