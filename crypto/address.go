package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

// TenurePrefix is the prefix for all tenure account addresses.
const TenurePrefix AddressPrefix = "ten"

// AddressLength is the raw byte length of an account address.
const AddressLength = 20

// Address is a 20-byte account identifier rendered as bech32.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress copies b into a fresh address. The length must be exactly
// AddressLength.
func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("crypto: address needs %d bytes, got %d", AddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

// MustNewAddress constructs an address and panics on invalid input. Reserved
// for addresses whose length is guaranteed by construction.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

// DecodeAddress parses a bech32 account string, keeping whatever prefix it
// carries.
func DecodeAddress(encoded string) (Address, error) {
	hrp, words, err := bech32.Decode(encoded)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: decode address: %w", err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: regroup address bits: %w", err)
	}
	return NewAddress(AddressPrefix(hrp), raw)
}

// String encodes the address as bech32.
func (a Address) String() string {
	words, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(fmt.Sprintf("crypto: regroup address bits: %v", err))
	}
	encoded, err := bech32.Encode(string(a.prefix), words)
	if err != nil {
		panic(fmt.Sprintf("crypto: encode address: %v", err))
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Array returns the address as a fixed 20-byte array.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// ModuleAddress derives the deterministic custody address for a native
// module from its label. The result has no known private key.
func ModuleAddress(label string) [20]byte {
	digest := crypto.Keccak256([]byte("tenure/module/" + label))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}
