package chain

import (
	"fmt"

	"github.com/algorand/go-codec/codec"
)

// msgpackHandle is the single canonical-msgpack handle used for every
// encode/decode in this package. Canonical mode sorts map keys and forbids
// indefinite-length containers, which is what makes CanonicalEncode produce
// the same bytes the node produced for the same logical value — this is the
// same library and the same canonicalization mode go-algorand-sdk uses (see
// other_examples/...types-transaction.go.go).
var msgpackHandle = newMsgpackHandle()

func newMsgpackHandle() *codec.MsgpackHandle {
	h := new(codec.MsgpackHandle)
	h.Canonical = true
	h.ErrorIfNoField = false
	h.ErrorIfNoArrayExpand = false
	h.RawToString = true
	h.WriteExt = true
	return h
}

func unmarshal(b []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(b, msgpackHandle)
	return dec.Decode(v)
}

func marshal(v interface{}) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// blockEnvelopeRaw captures the {block, cert} wrapper the node sends for
// GET /block/<round>?raw=1 (spec.md §6), keeping each half as opaque raw
// msgpack so the block can be decoded independently of the certificate,
// which this indexer never inspects (block signature verification is a
// Non-goal, spec.md §1).
type blockEnvelopeRaw struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Block codec.Raw `codec:"block"`
	Cert  codec.Raw `codec:"cert"`
}

// DecodeBlock decodes a raw block envelope as returned by the node's
// GET /block/<round>?raw=1 endpoint and returns the contained Block.
func DecodeBlock(raw []byte) (Block, error) {
	var env blockEnvelopeRaw
	if err := unmarshal(raw, &env); err != nil {
		return Block{}, fmt.Errorf("%w: decoding block envelope: %v", ErrMalformedRecord, err)
	}
	if len(env.Block) == 0 {
		return Block{}, fmt.Errorf("%w: block envelope missing \"block\" field", ErrMalformedRecord)
	}
	var blk Block
	if err := unmarshal(env.Block, &blk); err != nil {
		return Block{}, fmt.Errorf("%w: decoding block: %v", ErrMalformedRecord, err)
	}
	if err := validateBlockTxTypes(blk); err != nil {
		return Block{}, err
	}
	return blk, nil
}

// rawBlockBytes extracts just the "block" sub-message of a raw envelope,
// without decoding it into a Block. Used by the canonical round-trip test
// and nowhere else: the archiver persists the whole envelope untouched.
func rawBlockBytes(raw []byte) ([]byte, error) {
	var env blockEnvelopeRaw
	if err := unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decoding block envelope: %v", ErrMalformedRecord, err)
	}
	return []byte(env.Block), nil
}

// DecodeSignedTxn decodes a single canonical msgpack-encoded signed
// transaction, as stored in the txn table's txnbytes column.
func DecodeSignedTxn(raw []byte) (SignedTxn, error) {
	var stxn SignedTxn
	if err := unmarshal(raw, &stxn); err != nil {
		return SignedTxn{}, fmt.Errorf("%w: decoding signed transaction: %v", ErrMalformedRecord, err)
	}
	if _, ok := TypeEnumFor(stxn.Txn.Type); !ok {
		return SignedTxn{}, fmt.Errorf("%w: %q", ErrUnknownTxType, stxn.Txn.Type)
	}
	return stxn, nil
}

// CanonicalEncodeBlock produces the canonical msgpack bytes for blk, the
// same bytes the node would have produced for the "block" portion of its
// envelope.
func CanonicalEncodeBlock(blk Block) ([]byte, error) {
	return marshal(blk)
}

// CanonicalEncodeBlockHeader encodes just a block's header, without its
// transactions, as stored in block_header.header (spec.md §4.3 step 1).
func CanonicalEncodeBlockHeader(h BlockHeader) ([]byte, error) {
	return marshal(h)
}

// DecodeBlockHeader decodes the bytes CanonicalEncodeBlockHeader produced,
// the inverse used by the AccountingEngine when it replays block_header
// rows to recover a round's fee sink, rewards pool, and txn counter.
func DecodeBlockHeader(raw []byte) (BlockHeader, error) {
	var h BlockHeader
	if err := unmarshal(raw, &h); err != nil {
		return BlockHeader{}, fmt.Errorf("%w: decoding block header: %v", ErrMalformedRecord, err)
	}
	return h, nil
}

// CanonicalEncodeSignedTxn produces the canonical msgpack bytes for a
// signed transaction, as stored in txn.txnbytes.
func CanonicalEncodeSignedTxn(stxn SignedTxn) ([]byte, error) {
	return marshal(stxn)
}

// EncodeEnvelope wraps blk into the {block, cert} envelope DecodeBlock
// expects. Production code never calls this (a real node is the only
// producer of envelope bytes); it exists so tests and fixtures elsewhere
// in the module can synthesize fetch responses without reaching into this
// package's internals.
func EncodeEnvelope(blk Block) ([]byte, error) {
	encodedBlock, err := CanonicalEncodeBlock(blk)
	if err != nil {
		return nil, err
	}
	env := blockEnvelopeRaw{Block: codec.Raw(encodedBlock)}
	return marshal(env)
}

// DecodeNote attempts to parse note as canonical msgpack, per spec.md §4.1:
// "decode ... the note (if it itself parses as canonical msgpack) as a
// structured value; treat all other fields transparently." A note that
// does not parse as msgpack is not an error; ok is simply false.
func DecodeNote(note []byte) (value interface{}, ok bool) {
	if len(note) == 0 {
		return nil, false
	}
	var v interface{}
	if err := unmarshal(note, &v); err != nil {
		return nil, false
	}
	return v, true
}

func validateBlockTxTypes(blk Block) error {
	for i, stxn := range blk.Payset {
		if _, ok := TypeEnumFor(stxn.Txn.Type); !ok {
			return fmt.Errorf("%w: transaction at intra %d has type %q", ErrUnknownTxType, i, stxn.Txn.Type)
		}
	}
	return nil
}
