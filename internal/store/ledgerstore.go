package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

// PostgresLedgerStore is the Postgres implementation of LedgerWriter. The
// six-phase commit order in CommitRound is mandatory per spec.md §4.4:
// acfg before asset holdings (so default-frozen is known), holdings
// before closes (so a transfer-then-close nets correctly within one
// round).
type PostgresLedgerStore struct {
	db *DB
}

// NewPostgresLedgerStore wraps db as a LedgerWriter.
func NewPostgresLedgerStore(db *DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

type metastateValue struct {
	AccountRound *int64 `json:"account_round"`
}

// AccountRound reads metastate's distinguished "state" key.
func (s *PostgresLedgerStore) AccountRound(ctx context.Context) (int64, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metastate WHERE key = 'state'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: reading metastate: %v", chain.ErrStorage, err)
	}
	var v metastateValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, fmt.Errorf("%w: decoding metastate value: %v", chain.ErrStorage, err)
	}
	if v.AccountRound == nil {
		return 0, false, nil
	}
	return *v.AccountRound, true, nil
}

// BootstrapGenesis implements spec.md §4.4's genesis bootstrap: one
// account row per allocation, then account_round = -1, all in one
// transaction.
func (s *PostgresLedgerStore) BootstrapGenesis(ctx context.Context, allocs []GenesisAllocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning genesis transaction: %v", chain.ErrStorage, err)
	}
	defer tx.Rollback()

	for _, a := range allocs {
		addrStr, err := chain.EncodeAddress(a.Addr[:])
		if err != nil {
			return fmt.Errorf("%w: encoding genesis address: %v", chain.ErrMalformedRecord, err)
		}
		state := a.StateJSON
		if state == nil {
			state = []byte(`{}`)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account (addr, microalgos, account_data) VALUES ($1, $2, $3)
			ON CONFLICT (addr) DO UPDATE SET microalgos = EXCLUDED.microalgos, account_data = EXCLUDED.account_data`,
			addrStr, a.Microalgos, state,
		); err != nil {
			return fmt.Errorf("%w: inserting genesis account %s: %v", chain.ErrStorage, addrStr, err)
		}
	}

	if err := setAccountRound(ctx, tx, -1); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing genesis: %v", chain.ErrStorage, err)
	}
	return nil
}

// accountRoundLocked reads metastate's watermark within tx, row-locked so
// CommitRound can safely check-then-advance it without racing a concurrent
// writer.
func accountRoundLocked(ctx context.Context, tx *sql.Tx) (int64, bool, error) {
	var raw []byte
	err := tx.QueryRowContext(ctx, `SELECT value FROM metastate WHERE key = 'state' FOR UPDATE`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: reading metastate: %v", chain.ErrStorage, err)
	}
	var v metastateValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, fmt.Errorf("%w: decoding metastate value: %v", chain.ErrStorage, err)
	}
	if v.AccountRound == nil {
		return 0, false, nil
	}
	return *v.AccountRound, true, nil
}

func setAccountRound(ctx context.Context, tx *sql.Tx, round int64) error {
	value, err := json.Marshal(metastateValue{AccountRound: &round})
	if err != nil {
		return fmt.Errorf("marshaling metastate value: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO metastate (key, value) VALUES ('state', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, value)
	if err != nil {
		return fmt.Errorf("%w: writing metastate: %v", chain.ErrStorage, err)
	}
	return nil
}

// CommitRound applies one round's consolidated write in the six-phase
// order spec.md §4.4 mandates, inside one database transaction so the
// round watermark is crash-safe.
func (s *PostgresLedgerStore) CommitRound(ctx context.Context, round uint64, batch RoundBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning round %d transaction: %v", chain.ErrStorage, round, err)
	}
	defer tx.Rollback()

	current, ok, err := accountRoundLocked(ctx, tx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: round %d: no metastate watermark, genesis bootstrap must run first", chain.ErrStorage, round)
	}
	if want := NextRound(current); round != want {
		return fmt.Errorf("%w: committing round %d onto watermark %d (want %d)", chain.ErrWatermarkAdvance, round, current, want)
	}

	// Phase 1: algo_updates.
	for addr, delta := range batch.AlgoUpdates {
		addrStr, err := chain.EncodeAddress(addr[:])
		if err != nil {
			return fmt.Errorf("%w: encoding algo_updates address: %v", chain.ErrMalformedRecord, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account (addr, microalgos, account_data) VALUES ($1, $2, '{}'::jsonb)
			ON CONFLICT (addr) DO UPDATE SET microalgos = account.microalgos + EXCLUDED.microalgos`,
			addrStr, delta,
		); err != nil {
			return fmt.Errorf("%w: upserting algo delta for %s: %v", chain.ErrStorage, addrStr, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE account SET account_data = jsonb_set(account_data, '{algo}', to_jsonb(microalgos)) WHERE addr = $1`,
			addrStr,
		); err != nil {
			return fmt.Errorf("%w: syncing account_data.algo for %s: %v", chain.ErrStorage, addrStr, err)
		}
	}

	// Phase 2: acfg_updates.
	for _, u := range batch.AcfgUpdates {
		creatorStr, err := chain.EncodeAddress(u.Creator[:])
		if err != nil {
			return fmt.Errorf("%w: encoding acfg creator address: %v", chain.ErrMalformedRecord, err)
		}
		paramsJSON, err := json.Marshal(u.Params)
		if err != nil {
			return fmt.Errorf("marshaling asset params: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO asset (index, creator_addr, params) VALUES ($1, $2, $3)
			ON CONFLICT (index) DO UPDATE SET creator_addr = EXCLUDED.creator_addr, params = EXCLUDED.params`,
			u.AssetID, creatorStr, paramsJSON,
		); err != nil {
			return fmt.Errorf("%w: upserting asset %d: %v", chain.ErrStorage, u.AssetID, err)
		}
	}

	// Phase 3: asset_updates, with default_frozen applied only on insert.
	for h, delta := range batch.AssetUpdates {
		addrStr, err := chain.EncodeAddress(h.Addr[:])
		if err != nil {
			return fmt.Errorf("%w: encoding asset_updates address: %v", chain.ErrMalformedRecord, err)
		}
		frozen := batch.DefaultFrozen[h.AssetID]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_asset (addr, asset_id, amount, frozen) VALUES ($1, $2, $3, $4)
			ON CONFLICT (addr, asset_id) DO UPDATE SET amount = account_asset.amount + EXCLUDED.amount`,
			addrStr, h.AssetID, delta, frozen,
		); err != nil {
			return fmt.Errorf("%w: upserting asset holding %s/%d: %v", chain.ErrStorage, addrStr, h.AssetID, err)
		}
	}

	// Phase 4: freeze_updates.
	for h, frozen := range batch.FreezeUpdates {
		addrStr, err := chain.EncodeAddress(h.Addr[:])
		if err != nil {
			return fmt.Errorf("%w: encoding freeze_updates address: %v", chain.ErrMalformedRecord, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_asset (addr, asset_id, amount, frozen) VALUES ($1, $2, 0, $3)
			ON CONFLICT (addr, asset_id) DO UPDATE SET frozen = EXCLUDED.frozen`,
			addrStr, h.AssetID, frozen,
		); err != nil {
			return fmt.Errorf("%w: upserting freeze state %s/%d: %v", chain.ErrStorage, addrStr, h.AssetID, err)
		}
	}

	// Phase 5: asset_closes.
	for _, c := range batch.AssetCloses {
		holderStr, err := chain.EncodeAddress(c.Holder[:])
		if err != nil {
			return fmt.Errorf("%w: encoding asset close holder address: %v", chain.ErrMalformedRecord, err)
		}
		closeToStr, err := chain.EncodeAddress(c.CloseTo[:])
		if err != nil {
			return fmt.Errorf("%w: encoding asset close close-to address: %v", chain.ErrMalformedRecord, err)
		}

		var remaining sql.NullString
		err = tx.QueryRowContext(ctx, `
			SELECT amount FROM account_asset WHERE addr = $1 AND asset_id = $2 FOR UPDATE`,
			holderStr, c.AssetID,
		).Scan(&remaining)
		if err == sql.ErrNoRows {
			continue // nothing to close out
		}
		if err != nil {
			return fmt.Errorf("%w: reading holder balance for close %s/%d: %v", chain.ErrStorage, holderStr, c.AssetID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_asset (addr, asset_id, amount, frozen) VALUES ($1, $2, $3::numeric, false)
			ON CONFLICT (addr, asset_id) DO UPDATE SET amount = account_asset.amount + EXCLUDED.amount`,
			closeToStr, c.AssetID, remaining.String,
		); err != nil {
			return fmt.Errorf("%w: crediting close-to %s/%d: %v", chain.ErrStorage, closeToStr, c.AssetID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM account_asset WHERE addr = $1 AND asset_id = $2`,
			holderStr, c.AssetID,
		); err != nil {
			return fmt.Errorf("%w: deleting closed holder row %s/%d: %v", chain.ErrStorage, holderStr, c.AssetID, err)
		}
	}

	// Phase 6: watermark.
	if err := setAccountRound(ctx, tx, int64(round)); err != nil {
		return err
	}
	written, ok, err := accountRoundLocked(ctx, tx)
	if err != nil {
		return err
	}
	if !ok || written != int64(round) {
		return fmt.Errorf("%w: round %d: watermark read back as %d", chain.ErrWatermarkAdvance, round, written)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing round %d: %v", chain.ErrStorage, round, err)
	}
	return nil
}
