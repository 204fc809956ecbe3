package vault

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	bigRatchetTimeDivisor     = big.NewInt(RatchetTimeDivisor)
	bigRatchetQuantityDivisor = big.NewInt(RatchetQuantityDivisor)
	bigRatchetQuantityCap     = big.NewInt(RatchetQuantityCap)
)

// RatchetPrice derives the share price implied by a completed stake's actual
// payout and adopts it when it exceeds the current price. The returned price is
// always at least the current one; adopted reports whether it moved. Fails with
// ErrInvalidShares when the stake carries no shares, since the weighting term
// would otherwise divide by zero.
func RatchetPrice(current, totalPaid, shares *big.Int, daysStaked uint64) (*big.Int, bool, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, false, ErrInvalidShares
	}
	if current == nil || current.Sign() <= 0 || totalPaid == nil || totalPaid.Sign() < 0 {
		return nil, false, ErrInvalidInput
	}
	timeComp := uint64(1)
	if daysStaked > 1 {
		timeComp = daysStaked - 1
		if timeComp > RatchetTimeCap {
			timeComp = RatchetTimeCap
		}
	}
	candidate := ratchetCandidate(totalPaid, shares, timeComp)
	if candidate == nil || candidate.Cmp(current) <= 0 {
		return new(big.Int).Set(current), false, nil
	}
	return candidate, true, nil
}

func ratchetCandidate(totalPaid, shares *big.Int, timeComp uint64) *big.Int {
	if candidate, ok := ratchetCandidateFixed(totalPaid, shares, timeComp); ok {
		return candidate
	}
	return ratchetCandidateBig(totalPaid, shares, timeComp)
}

// ratchetCandidateFixed evaluates the ratchet in 256-bit fixed-width
// arithmetic. It reports false when any intermediate overflows, in which case
// the caller falls back to arbitrary precision.
func ratchetCandidateFixed(totalPaid, shares *big.Int, timeComp uint64) (*big.Int, bool) {
	paid, overflow := uint256.FromBig(totalPaid)
	if overflow {
		return nil, false
	}
	shareCount, overflow := uint256.FromBig(shares)
	if overflow {
		return nil, false
	}
	qualifying := new(uint256.Int).Set(paid)
	if limit := uint256.NewInt(RatchetQuantityCap); qualifying.Cmp(limit) > 0 {
		qualifying.Set(limit)
	}
	qualifying.Add(qualifying, uint256.NewInt(RatchetQuantityDivisor))

	numerator := new(uint256.Int)
	if _, overflow = numerator.MulOverflow(qualifying, paid); overflow {
		return nil, false
	}
	if _, overflow = numerator.MulOverflow(numerator, uint256.NewInt(PriceScale)); overflow {
		return nil, false
	}

	weighted := new(uint256.Int)
	if _, overflow = weighted.MulOverflow(uint256.NewInt(RatchetTimeDivisor), shareCount); overflow {
		return nil, false
	}
	weighted.Div(weighted, uint256.NewInt(RatchetTimeDivisor+timeComp))
	denominator := new(uint256.Int)
	if _, overflow = denominator.MulOverflow(weighted, uint256.NewInt(RatchetQuantityDivisor)); overflow {
		return nil, false
	}
	if denominator.IsZero() {
		// Weighting truncated to zero (dust share counts). No candidate.
		return nil, true
	}
	return new(uint256.Int).Div(numerator, denominator).ToBig(), true
}

func ratchetCandidateBig(totalPaid, shares *big.Int, timeComp uint64) *big.Int {
	qualifying := new(big.Int).Set(totalPaid)
	if qualifying.Cmp(bigRatchetQuantityCap) > 0 {
		qualifying.Set(bigRatchetQuantityCap)
	}
	qualifying.Add(qualifying, bigRatchetQuantityDivisor)
	numerator := new(big.Int).Mul(qualifying, totalPaid)
	numerator.Mul(numerator, bigPriceScale)

	weighted := new(big.Int).Mul(bigRatchetTimeDivisor, shares)
	weighted.Quo(weighted, new(big.Int).SetUint64(RatchetTimeDivisor+timeComp))
	denominator := weighted.Mul(weighted, bigRatchetQuantityDivisor)
	if denominator.Sign() == 0 {
		return nil
	}
	return numerator.Quo(numerator, denominator)
}
