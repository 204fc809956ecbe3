package vault

import "math/big"

var (
	bigQuantityBonusCap     = big.NewInt(QuantityBonusCap)
	bigQuantityBonusDivisor = big.NewInt(QuantityBonusDivisor)
	bigTimeBonusDivisor     = big.NewInt(TimeBonusDivisor)
	bigTimeBonusCap         = big.NewInt(TimeBonusCapMultiplier)
	bigPriceScale           = big.NewInt(PriceScale)
	bigTen                  = big.NewInt(10)
)

// QuantityBonus rewards stake size: min(amount, cap) * 10 / divisor,
// truncating. Monotonic non-decreasing and bounded by cap*10/divisor.
func QuantityBonus(amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	base := amount
	if base.Cmp(bigQuantityBonusCap) > 0 {
		base = bigQuantityBonusCap
	}
	bonus := new(big.Int).Mul(base, bigTen)
	return bonus.Quo(bonus, bigQuantityBonusDivisor)
}

// TimeBonus rewards commitment length: amount*(days-1)/divisor, capped at
// three times the amount. Zero for commitments of a day or less.
func TimeBonus(amount *big.Int, durationDays uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || durationDays <= 1 {
		return big.NewInt(0)
	}
	bonus := new(big.Int).Mul(amount, new(big.Int).SetUint64(durationDays-1))
	bonus.Quo(bonus, bigTimeBonusDivisor)
	ceiling := new(big.Int).Mul(amount, bigTimeBonusCap)
	if bonus.Cmp(ceiling) > 0 {
		return ceiling
	}
	return bonus
}

// StakeShares converts a deposit into shares at the given price:
// (amount + bonuses) * PriceScale / price, truncating toward zero.
func StakeShares(amount *big.Int, durationDays uint64, price *big.Int) (*ShareQuote, error) {
	if amount == nil || amount.Sign() <= 0 || durationDays == 0 {
		return nil, ErrInvalidInput
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidInput
	}
	quote := &ShareQuote{
		QuantityBonus: QuantityBonus(amount),
		TimeBonus:     TimeBonus(amount, durationDays),
	}
	quote.Effective = new(big.Int).Add(amount, quote.QuantityBonus)
	quote.Effective.Add(quote.Effective, quote.TimeBonus)
	quote.Shares = new(big.Int).Mul(quote.Effective, bigPriceScale)
	quote.Shares.Quo(quote.Shares, price)
	return quote, nil
}
