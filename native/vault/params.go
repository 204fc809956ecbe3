package vault

import (
	"fmt"

	"tenure/crypto"
)

// Economic constants of the vault. All divisions truncate toward zero.
const (
	// QuantityBonusCap bounds the amount considered for the quantity bonus.
	QuantityBonusCap = 150_000_000
	// QuantityBonusDivisor scales the capped amount into the quantity bonus.
	QuantityBonusDivisor = 1_500_000_000
	// TimeBonusDivisor converts committed days into the time bonus.
	TimeBonusDivisor = 1820
	// TimeBonusCapMultiplier caps the time bonus at three times the principal.
	TimeBonusCapMultiplier = 3

	// ShortStakeDays separates the short and long early-closure schedules.
	ShortStakeDays = 180
	// ShortStakePivotDays is the forfeiture pivot for short stakes.
	ShortStakePivotDays = 90
	// LongPrincipalPenaltyPercent is forfeited from principal before the
	// half-way point of a long stake.
	LongPrincipalPenaltyPercent = 20

	// GraceDays is the penalty-free window after natural completion.
	GraceDays = 14
	// LatePenaltyNumerator over LatePenaltyDenominator charges 0.125% of the
	// full entitlement per overdue day beyond grace.
	LatePenaltyNumerator   = 125
	LatePenaltyDenominator = 100_000
	// LateDaysCap bounds how many overdue days accrue penalty.
	LateDaysCap = 800

	// Penalty split: 25% burned, 25% to treasury, remainder (50% plus any
	// truncation dust) back to the reward pool.
	PenaltyBurnPercent     = 25
	PenaltyTreasuryPercent = 25

	// PriceScale is the fixed-point scale of the share price; a price equal
	// to PriceScale converts principal to shares one to one.
	PriceScale = 10_000
	// InitialSharePrice is the genesis share price.
	InitialSharePrice = 10_000

	// Ratchet constants for the scheduled-closure price update.
	RatchetTimeDivisor     = 1820
	RatchetTimeCap         = 3640
	RatchetQuantityDivisor = 1_500_000_000
	RatchetQuantityCap     = 150_000_000

	// DailyTopUpDivisor converts the reported supply into the daily pool credit.
	DailyTopUpDivisor = 10_000

	// SecondsPerDay fixes the day-accounting granularity.
	SecondsPerDay = 86_400
)

const moduleName = "vault"

// ModuleAddress returns the deterministic custody address holding all staked
// principal and pool-backed balance.
func ModuleAddress() crypto.Address {
	raw := crypto.ModuleAddress(moduleName)
	return crypto.MustNewAddress(crypto.TenurePrefix, raw[:])
}

// Params carries the operator configuration of the vault engine.
type Params struct {
	// Authority may run the privileged operations: daily top-up, pause
	// toggles and the emergency custody sweep.
	Authority crypto.Address
	// Treasury receives the treasury leg of every collected penalty.
	Treasury crypto.Address
}

// Validate ensures the supplied parameters identify real accounts.
func (p Params) Validate() error {
	if len(p.Authority.Bytes()) != crypto.AddressLength {
		return fmt.Errorf("vault: authority address required")
	}
	if len(p.Treasury.Bytes()) != crypto.AddressLength {
		return fmt.Errorf("vault: treasury address required")
	}
	return nil
}
