// Package store implements the Postgres-backed transaction store (C3's
// write side) and ledger projection (C4's write side), plus in-memory
// fakes of both for unit testing. Grounded on
// contract-data-processor/consumer/postgresql/{consumer,schema}.go's
// database/sql + lib/pq + embedded-SQL-migration pattern.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB wraps the shared *sql.DB connection pool used by both the
// TxnStore and LedgerStore implementations, since spec.md §5 has them
// sharing one Postgres database.
type DB struct {
	*sql.DB
}

// Open connects to dsn and applies the schema migration.
func Open(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", chain.ErrStorage, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", chain.ErrStorage, err)
	}
	sqlDB.SetMaxOpenConns(16)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	db := &DB{DB: sqlDB}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading embedded schema: %w", err)
	}
	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: applying migration statement %q: %v", chain.ErrStorage, stmt, err)
		}
	}
	return nil
}

// BlockImport is one decoded block's worth of rows for C3's write side.
type BlockImport struct {
	Round         uint64
	RealTime      time.Time
	HeaderMsgpack []byte
	Txns          []TxnImport
}

// TxnImport is one transaction's worth of rows for C3's write side.
type TxnImport struct {
	Intra        int
	TypeEnum     int
	AssetID      uint64
	TxnBytes     []byte
	TxnJSON      []byte
	Participants []chain.Address
}

// TxnWriter is C3's write-side contract, satisfied by both PostgresTxnStore
// and the in-memory fake used in tests.
type TxnWriter interface {
	IsImported(ctx context.Context, archivePath string) (bool, error)
	ImportBlock(ctx context.Context, block BlockImport) error
	MarkImported(ctx context.Context, archivePath string, jobID uuid.UUID) error
	LatestRound(ctx context.Context) (round uint64, ok bool, err error)
}

// LedgerReader is C4's read-side contract over the transaction store: it
// lets the AccountingEngine replay already-imported blocks in round order
// without depending on any of TxnWriter's write methods.
type LedgerReader interface {
	LatestRound(ctx context.Context) (round uint64, ok bool, err error)
	BlockHeader(ctx context.Context, round uint64) (chain.BlockHeader, bool, error)
	Transactions(ctx context.Context, round uint64) ([]chain.SignedTxn, error)
}

// AssetHolding keys a per-account-per-asset row.
type AssetHolding struct {
	Addr    chain.Address
	AssetID uint64
}

// AcfgUpdate is one pending asset-config write, per spec.md §4.4 item 2.
type AcfgUpdate struct {
	AssetID uint64
	Creator chain.Address
	Params  chain.AssetParams
}

// AssetClose is one pending asset-closeout, per spec.md §4.4 item 5.
type AssetClose struct {
	CloseTo chain.Address
	AssetID uint64
	Holder  chain.Address
}

// RoundBatch is the consolidated per-round write AccountingEngine commits,
// mirroring spec.md §4.4's in-memory delta maps exactly.
type RoundBatch struct {
	AlgoUpdates   map[chain.Address]int64
	AcfgUpdates   []AcfgUpdate
	AssetUpdates  map[AssetHolding]int64
	DefaultFrozen map[uint64]bool
	FreezeUpdates map[AssetHolding]bool
	AssetCloses   []AssetClose
}

// GenesisAllocation is one row of the genesis bootstrap, per spec.md
// §4.4's "Genesis bootstrap" paragraph.
type GenesisAllocation struct {
	Addr       chain.Address
	Microalgos uint64
	StateJSON  []byte
}

// LedgerWriter is C4's write-side contract, satisfied by both
// PostgresLedgerStore and the in-memory fake used in tests.
//
// AccountRound mirrors metastate's "account_round": ok=false means the
// key has never been set (pre-genesis); round=-1 with ok=true means
// genesis has run but no block has been applied yet.
type LedgerWriter interface {
	AccountRound(ctx context.Context) (round int64, ok bool, err error)
	BootstrapGenesis(ctx context.Context, allocs []GenesisAllocation) error
	CommitRound(ctx context.Context, round uint64, batch RoundBatch) error
}

// NextRound returns the round that must be committed immediately after
// accountRound. Real rounds are 1-indexed (there is no round 0 commit), so
// the post-genesis sentinel -1 maps to round 1, not round 0.
func NextRound(accountRound int64) uint64 {
	if accountRound < 0 {
		return 1
	}
	return uint64(accountRound) + 1
}
