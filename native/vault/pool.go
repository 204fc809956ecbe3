package vault

import "math/big"

var bigDailyTopUpDivisor = big.NewInt(DailyTopUpDivisor)

// DailyTopUpAmount returns the reward-pool credit for one privileged top-up,
// 0.01% of the caller-reported circulating supply.
func DailyTopUpAmount(currentSupply *big.Int) *big.Int {
	if currentSupply == nil || currentSupply.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(currentSupply, bigDailyTopUpDivisor)
}

// ProportionalYield returns the slice of the reward pool owed to a holding of
// shares out of totalShares. A zero pool or zero share supply yields zero.
func ProportionalYield(pool, shares, totalShares *big.Int) *big.Int {
	if pool == nil || pool.Sign() <= 0 {
		return big.NewInt(0)
	}
	if shares == nil || shares.Sign() <= 0 {
		return big.NewInt(0)
	}
	if totalShares == nil || totalShares.Sign() <= 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(pool, shares)
	return amount.Quo(amount, totalShares)
}
