package state

import (
	"fmt"

	"tenure/core/types"
	"tenure/crypto"
)

func accountKey(addr crypto.Address) []byte {
	return prefixedKey(accountPrefix, addr.Bytes())
}

// GetAccount loads the ledger entry stored under addr. Unknown addresses
// return nil rather than an empty account so callers can tell the two apart.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	if len(addr.Bytes()) != crypto.AddressLength {
		return nil, fmt.Errorf("account address must be %d bytes", crypto.AddressLength)
	}
	account := new(types.Account)
	ok, err := m.readRecord(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount persists the ledger entry for addr. Negative balances are
// rejected before they can reach the encoder.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if len(addr.Bytes()) != crypto.AddressLength {
		return fmt.Errorf("account address must be %d bytes", crypto.AddressLength)
	}
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	stored := account.Clone()
	stored.EnsureDefaults()
	if stored.Balance.Sign() < 0 {
		return fmt.Errorf("account balance cannot be negative")
	}
	return m.writeRecord(accountKey(addr), stored)
}
