package validator

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
)

// addressSpaceSize is 2^64, the size of the prefix space spec.md §4.5
// partitions for sharding.
var addressSpaceSize = new(big.Int).Lsh(big.NewInt(1), 64)

// AddressPrefix returns the first 8 bytes of addr as a big-endian uint64,
// the coordinate spec.md §4.5 partitions for shard bounds.
func AddressPrefix(addr chain.Address) uint64 {
	return binary.BigEndian.Uint64(addr[:8])
}

// ShardBounds partitions the 2^64 address-prefix space into count equal
// buckets and returns bucket index's inclusive lower bound lo. hi is the
// bucket's exclusive upper bound and is meaningful only when hasHi is
// true; the last bucket (index == count-1) has no representable upper
// bound since 2^64 itself overflows a uint64, so hasHi is false and every
// remaining prefix belongs to it.
func ShardBounds(index, count int) (lo, hi uint64, hasHi bool, err error) {
	if count <= 0 {
		return 0, 0, false, fmt.Errorf("validator: shard count must be positive, got %d", count)
	}
	if index < 0 || index >= count {
		return 0, 0, false, fmt.Errorf("validator: shard index %d out of range [0,%d)", index, count)
	}

	bucket := new(big.Int).Div(addressSpaceSize, big.NewInt(int64(count)))
	loBig := new(big.Int).Mul(bucket, big.NewInt(int64(index)))
	lo = loBig.Uint64()

	if index == count-1 {
		return lo, 0, false, nil
	}
	hiBig := new(big.Int).Mul(bucket, big.NewInt(int64(index+1)))
	return lo, hiBig.Uint64(), true, nil
}

// InShard reports whether prefix falls within bucket index of count,
// per the same partitioning ShardBounds computes.
func InShard(prefix uint64, index, count int) bool {
	lo, hi, hasHi, err := ShardBounds(index, count)
	if err != nil {
		return false
	}
	if prefix < lo {
		return false
	}
	return !hasHi || prefix < hi
}
