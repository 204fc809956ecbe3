package vault

import "math/big"

// Stake is the singleton per-account lock record. Time-derived values such as
// elapsed days are always computed from StartedAt, never stored. A closed
// record stays in state for history but no longer participates in totals.
type Stake struct {
	Owner        [20]byte
	Principal    *big.Int
	DurationDays uint64
	StartedAt    uint64
	Shares       *big.Int
	EarnedYield  *big.Int
	Active       bool
	ClosedAt     uint64
	Payout       *big.Int
}

// EnsureDefaults replaces nil amounts with zero values.
func (s *Stake) EnsureDefaults() {
	if s == nil {
		return
	}
	if s.Principal == nil {
		s.Principal = big.NewInt(0)
	}
	if s.Shares == nil {
		s.Shares = big.NewInt(0)
	}
	if s.EarnedYield == nil {
		s.EarnedYield = big.NewInt(0)
	}
	if s.Payout == nil {
		s.Payout = big.NewInt(0)
	}
}

// Clone returns a deep copy of the stake record.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	clone := &Stake{
		Owner:        s.Owner,
		DurationDays: s.DurationDays,
		StartedAt:    s.StartedAt,
		Active:       s.Active,
		ClosedAt:     s.ClosedAt,
	}
	clone.Principal = copyBigInt(s.Principal)
	clone.Shares = copyBigInt(s.Shares)
	clone.EarnedYield = copyBigInt(s.EarnedYield)
	clone.Payout = copyBigInt(s.Payout)
	return clone
}

// Aggregates holds the vault-wide totals read and written by every operation.
type Aggregates struct {
	// TotalShares equals the sum of shares over currently active stakes.
	TotalShares *big.Int
	// SharePrice is the fixed-point exchange rate; it never decreases.
	SharePrice *big.Int
	// RewardPool is the accumulated, undistributed yield balance.
	RewardPool *big.Int
	// LastTopUp records when the privileged top-up last ran.
	LastTopUp uint64
	// TotalBurned accumulates the burn leg of every collected penalty.
	TotalBurned *big.Int
}

// NewAggregates returns genesis aggregates at the initial share price.
func NewAggregates() *Aggregates {
	return &Aggregates{
		TotalShares: big.NewInt(0),
		SharePrice:  big.NewInt(InitialSharePrice),
		RewardPool:  big.NewInt(0),
		TotalBurned: big.NewInt(0),
	}
}

// EnsureDefaults replaces nil totals with zero values and restores the
// initial share price when unset.
func (a *Aggregates) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.TotalShares == nil {
		a.TotalShares = big.NewInt(0)
	}
	if a.SharePrice == nil || a.SharePrice.Sign() == 0 {
		a.SharePrice = big.NewInt(InitialSharePrice)
	}
	if a.RewardPool == nil {
		a.RewardPool = big.NewInt(0)
	}
	if a.TotalBurned == nil {
		a.TotalBurned = big.NewInt(0)
	}
}

// Clone returns a deep copy of the aggregates.
func (a *Aggregates) Clone() *Aggregates {
	if a == nil {
		return nil
	}
	return &Aggregates{
		TotalShares: copyBigInt(a.TotalShares),
		SharePrice:  copyBigInt(a.SharePrice),
		RewardPool:  copyBigInt(a.RewardPool),
		LastTopUp:   a.LastTopUp,
		TotalBurned: copyBigInt(a.TotalBurned),
	}
}

// ShareQuote is the breakdown of a share mint at the current price.
type ShareQuote struct {
	QuantityBonus *big.Int
	TimeBonus     *big.Int
	Effective     *big.Int
	Shares        *big.Int
}

// ClosureReceipt reports the settlement of a closed stake.
type ClosureReceipt struct {
	Scope             string
	ElapsedDays       uint64
	PrincipalReturned *big.Int
	YieldReturned     *big.Int
	Payout            *big.Int
	Penalty           *big.Int
	Burned            *big.Int
	PoolCredited      *big.Int
	TreasuryPaid      *big.Int
	SharePrice        *big.Int
	Ratcheted         bool
	ClosedAt          int64
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
