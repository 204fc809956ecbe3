// Package storage provides the key-value backends the state layer runs
// on: LevelDB on disk for the daemon, an in-memory map for tests.
package storage

import "errors"

// ErrKeyNotFound is returned by Get when the key has no stored value.
var ErrKeyNotFound = errors.New("storage: key not found")

// Database is the flat key-value contract the state layer builds on.
// Implementations must be safe for concurrent use.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Close()
}
