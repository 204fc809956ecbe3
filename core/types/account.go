package types

import "math/big"

// Account is the balance-ledger entry backing vault custody. Balances are
// denominated in base token units and never negative.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}

// EnsureDefaults replaces nil fields with zero values so callers can mutate
// the account without nil checks.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
