package state

import (
	"fmt"
	"math/big"
)

// TotalSupply returns the tracked native token supply. A fresh database
// defaults to zero.
func (m *Manager) TotalSupply() (*big.Int, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state manager unavailable")
	}
	total := new(big.Int)
	ok, err := m.readRecord(singletonKey(nativeSupplyKeyLabel), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// SetTotalSupply overwrites the tracked native token supply.
func (m *Manager) SetTotalSupply(total *big.Int) error {
	if total == nil {
		total = big.NewInt(0)
	}
	if total.Sign() < 0 {
		return fmt.Errorf("token supply cannot be negative")
	}
	return m.writeRecord(singletonKey(nativeSupplyKeyLabel), total)
}

// AdjustSupply adds delta to the tracked supply and returns the updated
// total. Mints pass a positive delta; burns a negative one.
func (m *Manager) AdjustSupply(delta *big.Int) (*big.Int, error) {
	if delta == nil {
		delta = big.NewInt(0)
	}
	current, err := m.TotalSupply()
	if err != nil {
		return nil, err
	}
	updated := new(big.Int).Add(current, delta)
	if updated.Sign() < 0 {
		return nil, fmt.Errorf("token supply underflow")
	}
	if err := m.writeRecord(singletonKey(nativeSupplyKeyLabel), updated); err != nil {
		return nil, err
	}
	return updated, nil
}
