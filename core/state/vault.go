package state

import (
	"fmt"
	"math/big"

	"tenure/crypto"
	"tenure/native/vault"
)

func vaultStakeKey(owner crypto.Address) []byte {
	return prefixedKey(vaultStakePrefix, owner.Bytes())
}

// VaultGetStake loads the stake record for owner. Accounts that never staked
// return nil.
func (m *Manager) VaultGetStake(owner crypto.Address) (*vault.Stake, error) {
	if len(owner.Bytes()) != crypto.AddressLength {
		return nil, fmt.Errorf("stake owner address must be %d bytes", crypto.AddressLength)
	}
	stake := new(vault.Stake)
	ok, err := m.readRecord(vaultStakeKey(owner), stake)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	stake.EnsureDefaults()
	return stake, nil
}

// VaultPutStake persists the stake record for owner. Closed records stay in
// state for history, so callers overwrite rather than delete.
func (m *Manager) VaultPutStake(owner crypto.Address, stake *vault.Stake) error {
	if len(owner.Bytes()) != crypto.AddressLength {
		return fmt.Errorf("stake owner address must be %d bytes", crypto.AddressLength)
	}
	if stake == nil {
		return fmt.Errorf("stake must not be nil")
	}
	stored := stake.Clone()
	stored.EnsureDefaults()
	for label, amount := range map[string]*big.Int{
		"principal":   stored.Principal,
		"shares":      stored.Shares,
		"earnedYield": stored.EarnedYield,
		"payout":      stored.Payout,
	} {
		if amount.Sign() < 0 {
			return fmt.Errorf("stake %s cannot be negative", label)
		}
	}
	return m.writeRecord(vaultStakeKey(owner), stored)
}

// VaultGetAggregates loads the vault-wide totals. A fresh database returns
// nil; the engine substitutes genesis aggregates.
func (m *Manager) VaultGetAggregates() (*vault.Aggregates, error) {
	aggregates := new(vault.Aggregates)
	ok, err := m.readRecord(singletonKey(vaultAggregatesKey), aggregates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	aggregates.EnsureDefaults()
	return aggregates, nil
}

// VaultPutAggregates persists the vault-wide totals.
func (m *Manager) VaultPutAggregates(aggregates *vault.Aggregates) error {
	if aggregates == nil {
		return fmt.Errorf("aggregates must not be nil")
	}
	stored := aggregates.Clone()
	stored.EnsureDefaults()
	for label, amount := range map[string]*big.Int{
		"total shares": stored.TotalShares,
		"share price":  stored.SharePrice,
		"reward pool":  stored.RewardPool,
		"total burned": stored.TotalBurned,
	} {
		if amount.Sign() < 0 {
			return fmt.Errorf("aggregate %s cannot be negative", label)
		}
	}
	return m.writeRecord(singletonKey(vaultAggregatesKey), stored)
}
