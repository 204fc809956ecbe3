package crypto

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey wraps a secp256k1 signing key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps the verifying half of a key pair.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey draws a fresh secp256k1 key from the system entropy
// source.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// PrivateKeyFromBytes rebuilds a key from its 32-byte scalar form.
func PrivateKeyFromBytes(raw []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse key: %w", err)
	}
	return &PrivateKey{PrivateKey: key}, nil
}

// Bytes returns the 32-byte scalar form of the private key.
func (k *PrivateKey) Bytes() []byte { return crypto.FromECDSA(k.PrivateKey) }

// PubKey returns the public half of the key.
func (k *PrivateKey) PubKey() *PublicKey { return &PublicKey{&k.PrivateKey.PublicKey} }

// Address derives the bech32 account address for the key.
func (k *PublicKey) Address() Address {
	raw := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return MustNewAddress(TenurePrefix, raw)
}
