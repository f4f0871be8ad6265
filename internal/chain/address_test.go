package chain

import (
	"bytes"
	"testing"
)

func TestAddressBijection(t *testing.T) {
	inputs := [][32]byte{
		{},
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32},
	}
	for i := range inputs[1] {
		inputs[1][i] = byte(255 - i)
	}

	for _, raw := range inputs {
		s, err := EncodeAddress(raw[:])
		if err != nil {
			t.Fatalf("EncodeAddress(%x): %v", raw, err)
		}
		got, err := DecodeAddress(s)
		if err != nil {
			t.Fatalf("DecodeAddress(%q): %v", s, err)
		}
		if !bytes.Equal(got[:], raw[:]) {
			t.Fatalf("round-trip mismatch: got %x, want %x", got, raw)
		}
	}
}

func TestEncodeAddressRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := EncodeAddress(make([]byte, n)); err == nil {
			t.Fatalf("EncodeAddress accepted length %d, want error", n)
		}
	}
}

func TestDecodeAddressRejectsBadChecksum(t *testing.T) {
	var raw [32]byte
	raw[0] = 7
	s, err := EncodeAddress(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	// Flip a character well inside the checksum-contributing tail.
	corrupted := []byte(s)
	last := corrupted[len(corrupted)-1]
	if last == 'A' {
		corrupted[len(corrupted)-1] = 'B'
	} else {
		corrupted[len(corrupted)-1] = 'A'
	}
	if _, err := DecodeAddress(string(corrupted)); err == nil {
		t.Fatal("DecodeAddress accepted a corrupted checksum")
	}
}

func TestAddressString(t *testing.T) {
	var a Address
	a[0] = 9
	if a.String() == "" {
		t.Fatal("String() returned empty string")
	}
	if a.IsZero() {
		t.Fatal("non-zero address reported IsZero")
	}
	var zero Address
	if !zero.IsZero() {
		t.Fatal("zero address reported non-zero")
	}
}
