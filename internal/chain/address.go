package chain

import (
	"crypto/sha512"
	"encoding/base32"
	"fmt"
)

// Address is a 32-byte account identifier.
type Address [32]byte

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAddress renders raw as its human-readable base32 form: the raw
// 32 bytes followed by a 4-byte checksum, base32 encoded without padding.
// The checksum is the last 4 bytes of the SHA-512/256 digest of raw, matching
// the real network's address checksum (see DESIGN.md for the digest choice).
// It rejects any input whose length is not 32.
func EncodeAddress(raw []byte) (string, error) {
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: address must be 32 bytes, got %d", ErrMalformedRecord, len(raw))
	}
	sum := sha512.Sum512_256(raw)
	checksum := sum[len(sum)-4:]
	buf := make([]byte, 0, 36)
	buf = append(buf, raw...)
	buf = append(buf, checksum...)
	return b32.EncodeToString(buf), nil
}

// DecodeAddress parses the base32 human-readable form back into 32 raw bytes,
// validating the embedded checksum.
func DecodeAddress(s string) ([32]byte, error) {
	var out [32]byte
	decoded, err := b32.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: address %q is not valid base32: %v", ErrMalformedRecord, s, err)
	}
	if len(decoded) != 36 {
		return out, fmt.Errorf("%w: address %q decodes to %d bytes, want 36", ErrMalformedRecord, s, len(decoded))
	}
	copy(out[:], decoded[:32])
	sum := sha512.Sum512_256(out[:])
	wantChecksum := sum[len(sum)-4:]
	gotChecksum := decoded[32:]
	for i := range wantChecksum {
		if wantChecksum[i] != gotChecksum[i] {
			return out, fmt.Errorf("%w: address %q failed checksum", ErrMalformedRecord, s)
		}
	}
	return out, nil
}

// String implements fmt.Stringer so addresses print in their canonical form.
func (a Address) String() string {
	s, err := EncodeAddress(a[:])
	if err != nil {
		// unreachable: a is always exactly 32 bytes
		return ""
	}
	return s
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Address intentionally does not implement encoding.TextMarshaler: the
// canonical msgpack codec must see it as a raw 32-byte array, never as a
// string, or the wire encoding would stop matching what the node produces.
// Call EncodeAddress/DecodeAddress explicitly at JSON/display boundaries.
