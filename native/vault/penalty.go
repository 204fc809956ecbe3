package vault

import "math/big"

var (
	bigEarlyPenaltyFactor   = big.NewInt(50)
	bigHundred              = big.NewInt(100)
	bigLongPrincipalPercent = big.NewInt(LongPrincipalPenaltyPercent)
	bigLateNumerator        = big.NewInt(LatePenaltyNumerator)
	bigLateDenominator      = big.NewInt(LatePenaltyDenominator)
	bigBurnPercent          = big.NewInt(PenaltyBurnPercent)
	bigTreasuryPercent      = big.NewInt(PenaltyTreasuryPercent)
)

// PenaltyBreakdown reports how a closure divides the stake's value between the
// owner and the penalty legs. Penalty is the assessed figure from the tier
// formula; Collected is the portion actually taken, split across the burn,
// pool and treasury legs. FromYield and FromPrincipal track the value source
// of the collected amount.
type PenaltyBreakdown struct {
	Penalty           *big.Int
	Collected         *big.Int
	FromYield         *big.Int
	FromPrincipal     *big.Int
	PrincipalReturned *big.Int
	YieldReturned     *big.Int
	Burn              *big.Int
	Pool              *big.Int
	Treasury          *big.Int
}

func newPenaltyBreakdown() *PenaltyBreakdown {
	return &PenaltyBreakdown{
		Penalty:           big.NewInt(0),
		Collected:         big.NewInt(0),
		FromYield:         big.NewInt(0),
		FromPrincipal:     big.NewInt(0),
		PrincipalReturned: big.NewInt(0),
		YieldReturned:     big.NewInt(0),
		Burn:              big.NewInt(0),
		Pool:              big.NewInt(0),
		Treasury:          big.NewInt(0),
	}
}

// EarlyPenalty computes the closure terms for a stake ended before its natural
// duration. Short stakes (duration < 180 days) forfeit yield only, pivoting at
// day 90; long stakes additionally forfeit 20% of principal before their
// half-way point.
func EarlyPenalty(principal, yield *big.Int, durationDays, elapsedDays uint64) *PenaltyBreakdown {
	p := copyBigInt(principal)
	y := copyBigInt(yield)
	b := newPenaltyBreakdown()

	if durationDays < ShortStakeDays {
		b.PrincipalReturned = p
		switch {
		case elapsedDays == 0:
			b.YieldReturned = y
		case elapsedDays < ShortStakePivotDays:
			penalty := new(big.Int).Mul(y, bigEarlyPenaltyFactor)
			penalty.Quo(penalty, new(big.Int).SetUint64(elapsedDays))
			b.Penalty = penalty
			returned := new(big.Int).Sub(y, penalty)
			if returned.Sign() < 0 {
				returned.SetInt64(0)
			}
			b.YieldReturned = returned
			b.FromYield = new(big.Int).Sub(y, returned)
		case elapsedDays == ShortStakePivotDays:
			b.Penalty = new(big.Int).Set(y)
			b.FromYield = new(big.Int).Set(y)
		default:
			daily := new(big.Int).Quo(y, new(big.Int).SetUint64(elapsedDays))
			returned := new(big.Int).Mul(daily, new(big.Int).SetUint64(elapsedDays-ShortStakePivotDays))
			b.YieldReturned = returned
			b.Penalty = new(big.Int).Sub(y, returned)
			b.FromYield = new(big.Int).Set(b.Penalty)
		}
	} else {
		half := durationDays / 2
		switch {
		case elapsedDays == 0:
			b.PrincipalReturned = p
		case elapsedDays < half:
			principalPenalty := new(big.Int).Mul(p, bigLongPrincipalPercent)
			principalPenalty.Quo(principalPenalty, bigHundred)
			b.Penalty = new(big.Int).Add(y, principalPenalty)
			b.PrincipalReturned = new(big.Int).Sub(p, principalPenalty)
			b.FromYield = new(big.Int).Set(y)
			b.FromPrincipal = principalPenalty
		case elapsedDays == half:
			b.Penalty = new(big.Int).Set(y)
			b.FromYield = new(big.Int).Set(y)
			b.PrincipalReturned = p
		default:
			daily := new(big.Int).Quo(y, new(big.Int).SetUint64(elapsedDays))
			returned := new(big.Int).Mul(daily, new(big.Int).SetUint64(elapsedDays-half))
			b.YieldReturned = returned
			b.Penalty = new(big.Int).Sub(y, returned)
			b.FromYield = new(big.Int).Set(b.Penalty)
			b.PrincipalReturned = p
		}
	}

	b.Collected = new(big.Int).Add(b.FromYield, b.FromPrincipal)
	b.split()
	return b
}

// LatePenalty computes the closure terms for a stake ended after its natural
// duration. Within the grace window the full entitlement is returned; beyond
// it, 0.125% of principal+yield accrues per overdue day (capped at 800 days),
// deducted from yield first, then principal.
func LatePenalty(principal, yield *big.Int, lateDays uint64) *PenaltyBreakdown {
	p := copyBigInt(principal)
	y := copyBigInt(yield)
	b := newPenaltyBreakdown()

	if lateDays <= GraceDays {
		b.PrincipalReturned = p
		b.YieldReturned = y
		return b
	}

	penaltyDays := lateDays - GraceDays
	if penaltyDays > LateDaysCap {
		penaltyDays = LateDaysCap
	}
	entitlement := new(big.Int).Add(p, y)
	penalty := new(big.Int).Mul(entitlement, bigLateNumerator)
	penalty.Mul(penalty, new(big.Int).SetUint64(penaltyDays))
	penalty.Quo(penalty, bigLateDenominator)
	b.Penalty = penalty

	fromYield := new(big.Int).Set(penalty)
	if fromYield.Cmp(y) > 0 {
		fromYield.Set(y)
	}
	remainder := new(big.Int).Sub(penalty, fromYield)
	fromPrincipal := remainder
	if fromPrincipal.Cmp(p) > 0 {
		fromPrincipal = new(big.Int).Set(p)
	}
	b.FromYield = fromYield
	b.FromPrincipal = fromPrincipal
	b.YieldReturned = new(big.Int).Sub(y, fromYield)
	b.PrincipalReturned = new(big.Int).Sub(p, fromPrincipal)
	b.Collected = new(big.Int).Add(fromYield, fromPrincipal)
	b.split()
	return b
}

// split divides the collected penalty 25/50/25 across burn, pool and treasury.
// The pool leg absorbs truncation dust so the legs always sum to Collected.
func (b *PenaltyBreakdown) split() {
	burn := new(big.Int).Mul(b.Collected, bigBurnPercent)
	burn.Quo(burn, bigHundred)
	treasury := new(big.Int).Mul(b.Collected, bigTreasuryPercent)
	treasury.Quo(treasury, bigHundred)
	pool := new(big.Int).Sub(b.Collected, burn)
	pool.Sub(pool, treasury)
	b.Burn = burn
	b.Treasury = treasury
	b.Pool = pool
}
