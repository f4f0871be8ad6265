package chain

// Package chain models the canonical on-wire shapes from spec.md §6 as
// tagged Go structs, following the codec-tag idiom used by the real
// go-algorand-sdk (see other_examples/...types-transaction.go.go): every
// wire field gets one struct field and one short `codec:"..."` tag, and no
// dynamic byte-keyed map survives past the decoder boundary.

import "fmt"

// Round is a block height.
type Round uint64

// Digest is a 32-byte hash value (seed, branch, txn root, group, ...).
type Digest [32]byte

// TxType is the short wire discriminator for a transaction's typed fields.
type TxType string

const (
	TxTypePayment       TxType = "pay"
	TxTypeKeyreg        TxType = "keyreg"
	TxTypeAssetConfig   TxType = "acfg"
	TxTypeAssetTransfer TxType = "axfer"
	TxTypeAssetFreeze   TxType = "afrz"
)

// TypeEnum is the stable small-integer dimension stored in the txn table,
// per spec.md §6.
type TypeEnum int

const (
	TypeEnumPayment       TypeEnum = 1
	TypeEnumKeyreg        TypeEnum = 2
	TypeEnumAssetConfig   TypeEnum = 3
	TypeEnumAssetTransfer TypeEnum = 4
	TypeEnumAssetFreeze   TypeEnum = 5
)

// TypeEnumFor maps a TxType to its stored dimension value, or (0, false)
// if tt is not one of the five known types.
func TypeEnumFor(tt TxType) (TypeEnum, bool) {
	switch tt {
	case TxTypePayment:
		return TypeEnumPayment, true
	case TxTypeKeyreg:
		return TypeEnumKeyreg, true
	case TxTypeAssetConfig:
		return TypeEnumAssetConfig, true
	case TxTypeAssetTransfer:
		return TypeEnumAssetTransfer, true
	case TxTypeAssetFreeze:
		return TypeEnumAssetFreeze, true
	default:
		return 0, false
	}
}

// Header captures the fields common to every transaction type.
type Header struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Sender      Address `codec:"snd"`
	Fee         uint64  `codec:"fee"`
	FirstValid  Round   `codec:"fv"`
	LastValid   Round   `codec:"lv"`
	Note        []byte  `codec:"note"`
	GenesisID   string  `codec:"gen"`
	GenesisHash Digest  `codec:"gh"`
	Group       Digest  `codec:"grp"`
	Lease       [32]byte `codec:"lx"`
}

// KeyregTxnFields captures the fields used for key registration transactions.
type KeyregTxnFields struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	VotePK          [32]byte `codec:"votekey"`
	SelectionPK     [32]byte `codec:"selkey"`
	VoteFirst       Round    `codec:"votefst"`
	VoteLast        Round    `codec:"votelst"`
	VoteKeyDilution uint64   `codec:"votekd"`
	Nonparticipation bool    `codec:"nonpart"`
}

// PaymentTxnFields captures the fields used by payment transactions.
type PaymentTxnFields struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Receiver         Address `codec:"rcv"`
	Amount           uint64  `codec:"amt"`
	CloseRemainderTo Address `codec:"close"`
}

// HasReceiver reports whether rcv was present on the wire.
func (p PaymentTxnFields) HasReceiver() bool { return !p.Receiver.IsZero() }

// HasCloseTo reports whether close was present on the wire.
func (p PaymentTxnFields) HasCloseTo() bool { return !p.CloseRemainderTo.IsZero() }

// AssetParams are the parameters for an asset being created or reconfigured.
type AssetParams struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Total         uint64  `codec:"t"`
	Decimals      uint32  `codec:"dc"`
	DefaultFrozen bool    `codec:"df"`
	UnitName      string  `codec:"un"`
	AssetName     string  `codec:"an"`
	URL           string  `codec:"au"`
	MetadataHash  [32]byte `codec:"am"`
	Manager       Address `codec:"m"`
	Reserve       Address `codec:"r"`
	Freeze        Address `codec:"f"`
	Clawback      Address `codec:"c"`
}

// IsZero reports whether ap is the zero value, i.e. apar was absent on the wire.
func (ap AssetParams) IsZero() bool {
	return ap == AssetParams{}
}

// AssetConfigTxnFields captures the fields used for asset creation,
// reconfiguration, and destruction.
type AssetConfigTxnFields struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	ConfigAsset uint64      `codec:"caid"`
	AssetParams AssetParams `codec:"apar"`
}

// AssetTransferTxnFields captures the fields used for asset transfers.
type AssetTransferTxnFields struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	XferAsset     uint64  `codec:"xaid"`
	AssetAmount   uint64  `codec:"aamt"`
	AssetSender   Address `codec:"asnd"`
	AssetReceiver Address `codec:"arcv"`
	AssetCloseTo  Address `codec:"aclose"`
}

// AssetFreezeTxnFields captures the fields used for asset freeze transactions.
type AssetFreezeTxnFields struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	FreezeAccount Address `codec:"fadd"`
	FreezeAsset   uint64  `codec:"faid"`
	AssetFrozen   bool    `codec:"afrz"`
}

// Transaction is a transaction's header plus exactly one populated set of
// typed fields, discriminated by Type.
type Transaction struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Type TxType `codec:"type"`
	Header
	KeyregTxnFields
	PaymentTxnFields
	AssetConfigTxnFields
	AssetTransferTxnFields
	AssetFreezeTxnFields
}

// MultisigSubsig is one signer's slot in a multisig signature.
type MultisigSubsig struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Key [32]byte `codec:"pk"`
	Sig [64]byte `codec:"s"`
}

// MultisigSig is the multisig variant of a transaction signature.
type MultisigSig struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Version   uint8            `codec:"v"`
	Threshold uint8            `codec:"thr"`
	Subsigs   []MultisigSubsig `codec:"subsig"`
}

// LogicSig is the logic-sig (smart contract) variant of a transaction
// signature. Program bytes and schemas are stored opaquely; evaluating the
// program is out of scope (spec.md §1 Non-goals).
type LogicSig struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Logic []byte      `codec:"l"`
	Sig   [64]byte    `codec:"sig"`
	Msig  MultisigSig `codec:"msig"`
	Args  [][]byte    `codec:"arg"`
}

// SignedTxn wraps a Transaction with its signature and the ApplyData fields
// the node records when it applies the transaction.
type SignedTxn struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Sig      [64]byte    `codec:"sig"`
	Msig     MultisigSig `codec:"msig"`
	Lsig     LogicSig    `codec:"lsig"`
	Txn      Transaction `codec:"txn"`
	AuthAddr Address     `codec:"sgnr"`

	// ApplyData, flattened onto the envelope per spec.md §3.
	ClosingAmount   uint64 `codec:"ca"`
	SenderRewards   uint64 `codec:"rs"`
	ReceiverRewards uint64 `codec:"rr"`
	CloseRewards    uint64 `codec:"rc"`
	HasGenesisID    bool   `codec:"hgi"`
	HasGenesisHash  bool   `codec:"hgh"`
}

// AssetID returns the asset id this transaction pertains to, per the fixed
// mapping in spec.md §4.3: caid for acfg, xaid for axfer, faid for afrz,
// else 0.
func (s SignedTxn) AssetID() uint64 {
	switch s.Txn.Type {
	case TxTypeAssetConfig:
		return s.Txn.ConfigAsset
	case TxTypeAssetTransfer:
		return s.Txn.XferAsset
	case TxTypeAssetFreeze:
		return s.Txn.FreezeAsset
	default:
		return 0
	}
}

// Participants returns the set (no duplicates) of every identity field
// present on the transaction, per spec.md §4.3.
func (s SignedTxn) Participants() []Address {
	seen := make(map[Address]struct{}, 6)
	var out []Address
	add := func(a Address) {
		if a.IsZero() {
			return
		}
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	add(s.Txn.Sender)
	add(s.Txn.Receiver)
	add(s.Txn.CloseRemainderTo)
	add(s.Txn.AssetSender)
	add(s.Txn.AssetReceiver)
	add(s.Txn.AssetCloseTo)
	return out
}

// UpgradeState carries the block header's protocol-upgrade bookkeeping
// fields, per spec.md §3 and §6.
type UpgradeState struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	CurrentProtocol        string `codec:"proto"`
	NextProtocol           string `codec:"nextproto"`
	NextProtocolApprovals  uint64 `codec:"nextyes"`
	NextProtocolVoteBefore Round  `codec:"nextbefore"`
	NextProtocolSwitchOn   Round  `codec:"nextswitch"`
}

// UpgradeVote carries one block's vote on the next protocol upgrade.
type UpgradeVote struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	UpgradePropose string `codec:"upgradeprop"`
	UpgradeDelay   Round  `codec:"upgradedelay"`
	UpgradeApprove bool   `codec:"upgradeyes"`
}

// RewardsState carries one block's algo-rewards bookkeeping fields.
type RewardsState struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	FeeSink                   Address `codec:"fees"`
	RewardsPool               Address `codec:"rwd"`
	RewardsLevel              uint64  `codec:"earn"`
	RewardsRate               uint64  `codec:"rate"`
	RewardsResidue            uint64  `codec:"frac"`
	RewardsRecalculationRound Round   `codec:"rwcalr"`
}

// BlockHeader is a block's header, without its transactions.
type BlockHeader struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Round       Round  `codec:"rnd"`
	Branch      Digest `codec:"prev"`
	Seed        Digest `codec:"seed"`
	TxnRoot     Digest `codec:"txn"`
	TimeStamp   int64  `codec:"ts"`
	GenesisID   string `codec:"gen"`
	GenesisHash Digest `codec:"gh"`
	TxnCounter  uint64 `codec:"tc"`

	RewardsState
	UpgradeState
	UpgradeVote
}

// Block is a block header plus its ordered transactions.
type Block struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	BlockHeader
	Payset []SignedTxn `codec:"txns"`
}

// Genesis is the genesis-allocation file the AccountingEngine bootstraps
// from (spec.md §4.4, original_source's accountreimpl.py). Unlike blocks
// and transactions this is a JSON document on a real node, not msgpack.
type Genesis struct {
	ID          string            `json:"id"`
	Network     string            `json:"network"`
	GenesisHash Digest            `json:"-"`
	FeeSink     string            `json:"fees"`
	RewardsPool string            `json:"rwd"`
	Allocation  []GenesisAllocation `json:"alloc"`
}

// GenesisAllocation is one funded account in the genesis file.
type GenesisAllocation struct {
	Address string             `json:"addr"`
	Comment string             `json:"comment"`
	State   GenesisAccountState `json:"state"`
}

// GenesisAccountState is the initial per-account state in the genesis file.
type GenesisAccountState struct {
	MicroAlgos uint64 `json:"algo"`
}

// ChainParams threads the protocol-level addresses needed by the
// AccountingValidator (the AccountingEngine reads them from each block
// header instead), replacing the "global mutable
// reward/fee addresses" pattern flagged in spec.md §9.
type ChainParams struct {
	FeeSink     Address
	RewardsPool Address
	GenesisHash Digest
	GenesisID   string
}

// ChainParams decodes g's human-readable fee sink / rewards pool
// addresses into the raw form callers outside the AccountingEngine (the
// validator, mainly) need for exemption comparisons.
func (g Genesis) ChainParams() (ChainParams, error) {
	var p ChainParams
	p.GenesisID = g.ID
	p.GenesisHash = g.GenesisHash
	if g.FeeSink != "" {
		raw, err := DecodeAddress(g.FeeSink)
		if err != nil {
			return ChainParams{}, fmt.Errorf("decoding genesis fee sink: %w", err)
		}
		p.FeeSink = Address(raw)
	}
	if g.RewardsPool != "" {
		raw, err := DecodeAddress(g.RewardsPool)
		if err != nil {
			return ChainParams{}, fmt.Errorf("decoding genesis rewards pool: %w", err)
		}
		p.RewardsPool = Address(raw)
	}
	return p, nil
}
