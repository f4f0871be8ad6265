package importer

import (
	"encoding/json"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

// marshalTxnJSON renders a structured JSON view of stxn for the txn
// table's "txn" column. Field names follow Go's default JSON encoding
// rather than the wire's short msgpack keys, since this column exists for
// human/tool inspection, not as a canonical wire format.
func marshalTxnJSON(stxn chain.SignedTxn) ([]byte, error) {
	return json.Marshal(stxn)
}
