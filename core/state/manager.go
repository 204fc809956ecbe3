package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tenure/storage"
)

// Manager reads and writes ledger state over a raw key-value database. Every
// record lives under keccak256(namespace || key) so namespaces can never
// collide, and values are RLP encoded.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func prefixedKey(prefix, key []byte) []byte {
	buf := make([]byte, len(prefix)+len(key))
	copy(buf, prefix)
	copy(buf[len(prefix):], key)
	return ethcrypto.Keccak256(buf)
}

func singletonKey(label []byte) []byte {
	return ethcrypto.Keccak256(label)
}

// readRecord decodes the value stored under key into out and reports whether
// a record was present. Missing keys are not an error.
func (m *Manager) readRecord(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state manager unavailable")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) writeRecord(key []byte, record interface{}) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager unavailable")
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}
