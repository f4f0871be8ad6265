package chain

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadGenesisFile reads and decodes the genesis allocation file at path,
// the JSON document the AccountingEngine bootstraps from and the
// AccountingValidator derives ChainParams from.
func LoadGenesisFile(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("reading genesis file %q: %w", path, err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return Genesis{}, fmt.Errorf("parsing genesis file %q: %w", path, err)
	}
	return g, nil
}
