package chain

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/algorand/go-codec/codec"
)

func addrN(n byte) Address {
	var a Address
	a[0] = n
	a[31] = n
	return a
}

func sampleBlock() Block {
	pay := SignedTxn{
		Txn: Transaction{
			Type: TxTypePayment,
			Header: Header{
				Sender:     addrN(1),
				Fee:        1000,
				FirstValid: 10,
				LastValid:  1010,
				GenesisID:  "testnet-v1.0",
			},
			PaymentTxnFields: PaymentTxnFields{
				Receiver: addrN(2),
				Amount:   5000,
			},
		},
		SenderRewards: 0,
	}
	acfg := SignedTxn{
		Txn: Transaction{
			Type: TxTypeAssetConfig,
			Header: Header{
				Sender: addrN(3),
				Fee:    1000,
			},
			AssetConfigTxnFields: AssetConfigTxnFields{
				ConfigAsset: 0,
				AssetParams: AssetParams{
					Total:    1_000_000,
					UnitName: "FOO",
				},
			},
		},
	}
	return Block{
		BlockHeader: BlockHeader{
			Round:      42,
			TimeStamp:  1700000000,
			GenesisID:  "testnet-v1.0",
			TxnCounter: 100,
			RewardsState: RewardsState{
				FeeSink:     addrN(9),
				RewardsPool: addrN(10),
			},
		},
		Payset: []SignedTxn{pay, acfg},
	}
}

func wrapEnvelope(t *testing.T, blk Block) []byte {
	t.Helper()
	encodedBlock, err := CanonicalEncodeBlock(blk)
	if err != nil {
		t.Fatalf("CanonicalEncodeBlock: %v", err)
	}
	env := blockEnvelopeRaw{
		Block: codec.Raw(encodedBlock),
		Cert:  codec.Raw{},
	}
	raw, err := marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestDecodeBlockCanonicalRoundTrip(t *testing.T) {
	blk := sampleBlock()
	raw := wrapEnvelope(t, blk)

	decoded, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}

	rawBlock, err := rawBlockBytes(raw)
	if err != nil {
		t.Fatalf("rawBlockBytes: %v", err)
	}
	reencoded, err := CanonicalEncodeBlock(decoded)
	if err != nil {
		t.Fatalf("CanonicalEncodeBlock: %v", err)
	}
	if !bytes.Equal(reencoded, rawBlock) {
		t.Fatalf("round trip mismatch:\n got  %x\n want %x", reencoded, rawBlock)
	}

	decodedAgain, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("DecodeBlock (2nd): %v", err)
	}
	if !reflect.DeepEqual(decoded, decodedAgain) {
		t.Fatalf("decode is not deterministic: %+v != %+v", decoded, decodedAgain)
	}
	if decoded.Round != 42 {
		t.Fatalf("Round = %d, want 42", decoded.Round)
	}
	if len(decoded.Payset) != 2 {
		t.Fatalf("Payset len = %d, want 2", len(decoded.Payset))
	}
}

func TestDecodeBlockRejectsUnknownTxType(t *testing.T) {
	blk := sampleBlock()
	blk.Payset[0].Txn.Type = "unknown"
	raw := wrapEnvelope(t, blk)
	if _, err := DecodeBlock(raw); err == nil {
		t.Fatal("DecodeBlock accepted an unknown tx type")
	}
}

func TestDecodeBlockRejectsMalformedEnvelope(t *testing.T) {
	if _, err := DecodeBlock([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("DecodeBlock accepted garbage bytes")
	}
}

func TestSignedTxnRoundTrip(t *testing.T) {
	stxn := SignedTxn{
		Txn: Transaction{
			Type: TxTypeAssetTransfer,
			Header: Header{
				Sender: addrN(5),
				Fee:    1000,
			},
			AssetTransferTxnFields: AssetTransferTxnFields{
				XferAsset:     77,
				AssetAmount:   10,
				AssetReceiver: addrN(6),
			},
		},
	}
	encoded, err := CanonicalEncodeSignedTxn(stxn)
	if err != nil {
		t.Fatalf("CanonicalEncodeSignedTxn: %v", err)
	}
	decoded, err := DecodeSignedTxn(encoded)
	if err != nil {
		t.Fatalf("DecodeSignedTxn: %v", err)
	}
	if !reflect.DeepEqual(stxn, decoded) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, stxn)
	}
	if decoded.AssetID() != 77 {
		t.Fatalf("AssetID() = %d, want 77", decoded.AssetID())
	}
}

func TestDecodeSignedTxnRejectsUnknownType(t *testing.T) {
	stxn := SignedTxn{Txn: Transaction{Type: "bogus"}}
	encoded, err := CanonicalEncodeSignedTxn(stxn)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeSignedTxn(encoded); err == nil {
		t.Fatal("DecodeSignedTxn accepted an unknown tx type")
	}
}

func TestParticipants(t *testing.T) {
	stxn := SignedTxn{
		Txn: Transaction{
			Type: TxTypeAssetTransfer,
			Header: Header{
				Sender: addrN(1),
			},
			AssetTransferTxnFields: AssetTransferTxnFields{
				AssetSender:   addrN(1), // same as sender: must not duplicate
				AssetReceiver: addrN(2),
				AssetCloseTo:  addrN(3),
			},
		},
	}
	got := stxn.Participants()
	want := []Address{addrN(1), addrN(2), addrN(3)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Participants() = %+v, want %+v", got, want)
	}
}

func TestDecodeNote(t *testing.T) {
	structured, err := marshal(map[string]interface{}{"k": "v"})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := DecodeNote(structured); !ok || v == nil {
		t.Fatalf("DecodeNote on structured note: ok=%v v=%v", ok, v)
	}
	// 0xc1 is permanently reserved/unused in the msgpack spec, so this can
	// never parse as a value.
	if _, ok := DecodeNote([]byte{0xc1, 0xc1, 0xc1}); ok {
		t.Fatal("DecodeNote reported ok for opaque bytes")
	}
	if _, ok := DecodeNote(nil); ok {
		t.Fatal("DecodeNote reported ok for empty note")
	}
}

func TestTypeEnumFor(t *testing.T) {
	cases := map[TxType]TypeEnum{
		TxTypePayment:       TypeEnumPayment,
		TxTypeKeyreg:        TypeEnumKeyreg,
		TxTypeAssetConfig:   TypeEnumAssetConfig,
		TxTypeAssetTransfer: TypeEnumAssetTransfer,
		TxTypeAssetFreeze:   TypeEnumAssetFreeze,
	}
	for tt, want := range cases {
		got, ok := TypeEnumFor(tt)
		if !ok || got != want {
			t.Fatalf("TypeEnumFor(%q) = (%d, %v), want (%d, true)", tt, got, ok, want)
		}
	}
	if _, ok := TypeEnumFor("nope"); ok {
		t.Fatal("TypeEnumFor accepted an unknown type")
	}
}
