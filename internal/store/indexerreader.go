package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

// AssetHoldingAmount is one account_asset row as read back for the
// AccountingValidator (C5).
type AssetHoldingAmount struct {
	AssetID uint64
	Amount  uint64
	Frozen  bool
}

// CreatedAsset is one asset row this account created.
type CreatedAsset struct {
	AssetID uint64
	Params  chain.AssetParams
}

// IndexerAccount is the ledger projection's view of one account, the
// indexer side of spec.md §4.5's comparison.
type IndexerAccount struct {
	Addr          chain.Address
	Microalgos    uint64
	Holdings      []AssetHoldingAmount
	CreatedAssets []CreatedAsset
}

// TxnRef identifies one transaction for the validator's mismatch
// transcript (spec.md §4.5 step 6).
type TxnRef struct {
	Round    uint64
	Intra    int
	TypeEnum int
	AssetID  uint64
}

// IndexerReader is C5's read-side contract over the ledger projection.
// ListAccountsPage paginates in addr order starting strictly after
// "after" (the zero address means "start from the beginning"); the
// caller is responsible for shard-bounds filtering since this store
// only orders rows, it does not partition the address space.
type IndexerReader interface {
	ListAccountsPage(ctx context.Context, after chain.Address, limit int) (accounts []IndexerAccount, more bool, err error)
	Account(ctx context.Context, addr chain.Address) (IndexerAccount, bool, error)
	RecentParticipation(ctx context.Context, addr chain.Address, limit int) ([]TxnRef, error)
}

// ListAccountsPage implements IndexerReader by walking the account table in
// order of the base32-encoded addr column. That text order is not the order
// of the raw 32-byte addresses (base32's digits 2-7 sort before its letters
// as text but encode larger values), so a page is not sorted by address
// prefix.
func (s *PostgresLedgerStore) ListAccountsPage(ctx context.Context, after chain.Address, limit int) ([]IndexerAccount, bool, error) {
	afterStr := ""
	if !after.IsZero() {
		var err error
		afterStr, err = chain.EncodeAddress(after[:])
		if err != nil {
			return nil, false, fmt.Errorf("%w: encoding cursor address: %v", chain.ErrMalformedRecord, err)
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT addr FROM account WHERE addr > $1 ORDER BY addr LIMIT $2`, afterStr, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("%w: listing accounts: %v", chain.ErrStorage, err)
	}
	defer rows.Close()

	var addrs []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, false, fmt.Errorf("%w: scanning addr: %v", chain.ErrStorage, err)
		}
		addrs = append(addrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: iterating accounts: %v", chain.ErrStorage, err)
	}

	more := len(addrs) > limit
	if more {
		addrs = addrs[:limit]
	}

	out := make([]IndexerAccount, 0, len(addrs))
	for _, addrStr := range addrs {
		raw, err := chain.DecodeAddress(addrStr)
		if err != nil {
			return nil, false, err
		}
		acct, ok, err := s.Account(ctx, chain.Address(raw))
		if err != nil {
			return nil, false, err
		}
		if ok {
			out = append(out, acct)
		}
	}
	return out, more, nil
}

// Account reads one account's full projection row: balance, asset
// holdings, and created assets.
func (s *PostgresLedgerStore) Account(ctx context.Context, addr chain.Address) (IndexerAccount, bool, error) {
	addrStr, err := chain.EncodeAddress(addr[:])
	if err != nil {
		return IndexerAccount{}, false, fmt.Errorf("%w: encoding address: %v", chain.ErrMalformedRecord, err)
	}

	var microalgos int64
	err = s.db.QueryRowContext(ctx, `SELECT microalgos FROM account WHERE addr = $1`, addrStr).Scan(&microalgos)
	if err == sql.ErrNoRows {
		return IndexerAccount{}, false, nil
	}
	if err != nil {
		return IndexerAccount{}, false, fmt.Errorf("%w: reading account %s: %v", chain.ErrStorage, addrStr, err)
	}

	holdingRows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, amount, frozen FROM account_asset WHERE addr = $1 ORDER BY asset_id`, addrStr)
	if err != nil {
		return IndexerAccount{}, false, fmt.Errorf("%w: reading holdings for %s: %v", chain.ErrStorage, addrStr, err)
	}
	defer holdingRows.Close()
	var holdings []AssetHoldingAmount
	for holdingRows.Next() {
		var h AssetHoldingAmount
		var amount int64
		if err := holdingRows.Scan(&h.AssetID, &amount, &h.Frozen); err != nil {
			return IndexerAccount{}, false, fmt.Errorf("%w: scanning holding: %v", chain.ErrStorage, err)
		}
		h.Amount = uint64(amount)
		holdings = append(holdings, h)
	}

	assetRows, err := s.db.QueryContext(ctx, `
		SELECT index, params FROM asset WHERE creator_addr = $1 ORDER BY index`, addrStr)
	if err != nil {
		return IndexerAccount{}, false, fmt.Errorf("%w: reading created assets for %s: %v", chain.ErrStorage, addrStr, err)
	}
	defer assetRows.Close()
	var created []CreatedAsset
	for assetRows.Next() {
		var ca CreatedAsset
		var paramsJSON []byte
		if err := assetRows.Scan(&ca.AssetID, &paramsJSON); err != nil {
			return IndexerAccount{}, false, fmt.Errorf("%w: scanning created asset: %v", chain.ErrStorage, err)
		}
		if err := json.Unmarshal(paramsJSON, &ca.Params); err != nil {
			return IndexerAccount{}, false, fmt.Errorf("%w: decoding asset params: %v", chain.ErrStorage, err)
		}
		created = append(created, ca)
	}

	return IndexerAccount{
		Addr:          addr,
		Microalgos:    uint64(microalgos),
		Holdings:      holdings,
		CreatedAssets: created,
	}, true, nil
}

// RecentParticipation returns the last limit transactions touching addr,
// most recent first, for the validator's mismatch transcript.
func (s *PostgresLedgerStore) RecentParticipation(ctx context.Context, addr chain.Address, limit int) ([]TxnRef, error) {
	addrStr, err := chain.EncodeAddress(addr[:])
	if err != nil {
		return nil, fmt.Errorf("%w: encoding address: %v", chain.ErrMalformedRecord, err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.round, t.intra, t.typeenum, t.asset
		FROM txn_participation p JOIN txn t ON t.round = p.round AND t.intra = p.intra
		WHERE p.addr = $1
		ORDER BY t.round DESC, t.intra DESC
		LIMIT $2`, addrStr, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: reading participation for %s: %v", chain.ErrStorage, addrStr, err)
	}
	defer rows.Close()

	var out []TxnRef
	for rows.Next() {
		var ref TxnRef
		if err := rows.Scan(&ref.Round, &ref.Intra, &ref.TypeEnum, &ref.AssetID); err != nil {
			return nil, fmt.Errorf("%w: scanning participation row: %v", chain.ErrStorage, err)
		}
		out = append(out, ref)
	}
	return out, nil
}

// MemIndexerReader is an in-memory IndexerReader built directly from a
// MemLedgerStore's maps, used by validator unit tests.
type MemIndexerReader struct {
	ls *MemLedgerStore
}

// NewMemIndexerReader wraps ls as an IndexerReader.
func NewMemIndexerReader(ls *MemLedgerStore) *MemIndexerReader {
	return &MemIndexerReader{ls: ls}
}

func (r *MemIndexerReader) accountLocked(addr chain.Address) (IndexerAccount, bool) {
	balance, ok := r.ls.Accounts[addr]
	var holdings []AssetHoldingAmount
	for h, exists := range r.ls.HoldingExists {
		if !exists || h.Addr != addr {
			continue
		}
		holdings = append(holdings, AssetHoldingAmount{
			AssetID: h.AssetID,
			Amount:  uint64(r.ls.Holdings[h]),
			Frozen:  r.ls.Frozen[h],
		})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].AssetID < holdings[j].AssetID })

	var created []CreatedAsset
	for id, u := range r.ls.Assets {
		if u.Creator == addr {
			created = append(created, CreatedAsset{AssetID: id, Params: u.Params})
		}
	}
	sort.Slice(created, func(i, j int) bool { return created[i].AssetID < created[j].AssetID })

	if !ok && holdings == nil && created == nil {
		return IndexerAccount{}, false
	}
	return IndexerAccount{Addr: addr, Microalgos: uint64(balance), Holdings: holdings, CreatedAssets: created}, true
}

func (r *MemIndexerReader) Account(ctx context.Context, addr chain.Address) (IndexerAccount, bool, error) {
	r.ls.mu.Lock()
	defer r.ls.mu.Unlock()
	acct, ok := r.accountLocked(addr)
	return acct, ok, nil
}

func (r *MemIndexerReader) ListAccountsPage(ctx context.Context, after chain.Address, limit int) ([]IndexerAccount, bool, error) {
	r.ls.mu.Lock()
	defer r.ls.mu.Unlock()

	addrSet := make(map[chain.Address]struct{})
	for a := range r.ls.Accounts {
		addrSet[a] = struct{}{}
	}
	for h, exists := range r.ls.HoldingExists {
		if exists {
			addrSet[h.Addr] = struct{}{}
		}
	}
	addrs := make([]chain.Address, 0, len(addrSet))
	for a := range addrSet {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return string(addrs[i][:]) < string(addrs[j][:]) })

	var out []IndexerAccount
	more := false
	for _, a := range addrs {
		if string(a[:]) <= string(after[:]) {
			continue
		}
		if len(out) == limit {
			more = true
			break
		}
		acct, ok := r.accountLocked(a)
		if ok {
			out = append(out, acct)
		}
	}
	return out, more, nil
}

func (r *MemIndexerReader) RecentParticipation(ctx context.Context, addr chain.Address, limit int) ([]TxnRef, error) {
	return nil, nil
}
