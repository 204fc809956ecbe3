package vault

import (
	"errors"
	"math/big"
	"testing"

	"tenure/core/events"
)

// openFunded opens a 1,000,000 stake for durationDays against a freshly
// funded owner and seeds the reward pool with 1,200 via the daily top-up.
func openFunded(t *testing.T, engine *Engine, state *mockEngineState, durationDays uint64) {
	t.Helper()
	owner := makeAddress(0x10)
	fund(state, owner, 5_000_000)
	if _, err := engine.OpenStake(owner, big.NewInt(1_000_000), durationDays, testStart); err != nil {
		t.Fatalf("open stake: %v", err)
	}
	if _, err := engine.TopUpDaily(testParams().Authority, big.NewInt(12_000_000), testStart+1); err != nil {
		t.Fatalf("top-up: %v", err)
	}
}

func TestCloseEarlyShortAtPivotForfeitsYield(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 120)
	owner := makeAddress(0x10)

	receipt, err := engine.CloseEarly(owner, daysAfter(90))
	if err != nil {
		t.Fatalf("close early: %v", err)
	}
	if receipt.Scope != events.VaultCloseScopeEarly {
		t.Fatalf("unexpected scope %q", receipt.Scope)
	}
	if receipt.ElapsedDays != 90 {
		t.Fatalf("elapsed: got %d want 90", receipt.ElapsedDays)
	}
	if receipt.YieldReturned.Sign() != 0 {
		t.Fatalf("the pivot forfeits all yield, got %s back", receipt.YieldReturned)
	}
	if receipt.PrincipalReturned.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("principal returned: got %s", receipt.PrincipalReturned)
	}
	if receipt.Penalty.Cmp(big.NewInt(1_200)) != 0 {
		t.Fatalf("penalty: got %s want 1200", receipt.Penalty)
	}
	if receipt.Burned.Cmp(big.NewInt(300)) != 0 || receipt.TreasuryPaid.Cmp(big.NewInt(300)) != 0 || receipt.PoolCredited.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("unexpected split: burn %s treasury %s pool %s", receipt.Burned, receipt.TreasuryPaid, receipt.PoolCredited)
	}
	if got := state.balance(owner); got.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("owner ends where they started, got %s", got)
	}
	if got := state.balance(testParams().Treasury); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("treasury balance: got %s want 300", got)
	}
	if state.aggregates.TotalBurned.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("total burned: got %s want 300", state.aggregates.TotalBurned)
	}
	if state.aggregates.TotalShares.Sign() != 0 {
		t.Fatalf("shares must be burned, total %s", state.aggregates.TotalShares)
	}
	if state.aggregates.RewardPool.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("pool: got %s want 600", state.aggregates.RewardPool)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestCloseEarlyBeforePivotReturnsScaledYield(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 120)
	owner := makeAddress(0x10)

	receipt, err := engine.CloseEarly(owner, daysAfter(60))
	if err != nil {
		t.Fatalf("close early: %v", err)
	}
	if receipt.Penalty.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("penalty: got %s want 1000", receipt.Penalty)
	}
	if receipt.YieldReturned.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("yield returned: got %s want 200", receipt.YieldReturned)
	}
	if receipt.Payout.Cmp(big.NewInt(1_000_200)) != 0 {
		t.Fatalf("payout: got %s want 1000200", receipt.Payout)
	}
	if got := state.balance(owner); got.Cmp(big.NewInt(5_000_200)) != 0 {
		t.Fatalf("owner balance: got %s want 5000200", got)
	}
	if state.aggregates.RewardPool.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("pool: got %s want 500", state.aggregates.RewardPool)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestCloseEarlyLongBeforeHalfCostsPrincipal(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 200)
	owner := makeAddress(0x10)

	receipt, err := engine.CloseEarly(owner, daysAfter(50))
	if err != nil {
		t.Fatalf("close early: %v", err)
	}
	if receipt.PrincipalReturned.Cmp(big.NewInt(800_000)) != 0 {
		t.Fatalf("principal returned: got %s want 800000", receipt.PrincipalReturned)
	}
	if receipt.YieldReturned.Sign() != 0 {
		t.Fatalf("no yield before the half-way point, got %s", receipt.YieldReturned)
	}
	if receipt.Penalty.Cmp(big.NewInt(201_200)) != 0 {
		t.Fatalf("penalty: got %s want 201200", receipt.Penalty)
	}
	if state.aggregates.RewardPool.Cmp(big.NewInt(100_600)) != 0 {
		t.Fatalf("pool: got %s want 100600", state.aggregates.RewardPool)
	}
	if got := state.balance(testParams().Treasury); got.Cmp(big.NewInt(50_300)) != 0 {
		t.Fatalf("treasury balance: got %s want 50300", got)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestCloseEarlyLongOnOpeningDayWaivesYield(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 200)
	owner := makeAddress(0x10)

	// One hour in: zero elapsed days. The pool claim stays unexercised.
	receipt, err := engine.CloseEarly(owner, testStart+3_600)
	if err != nil {
		t.Fatalf("close early: %v", err)
	}
	if receipt.Payout.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("payout: got %s want 1000000", receipt.Payout)
	}
	if receipt.Penalty.Sign() != 0 {
		t.Fatalf("no penalty on the opening day, got %s", receipt.Penalty)
	}
	if state.aggregates.RewardPool.Cmp(big.NewInt(1_200)) != 0 {
		t.Fatalf("pool must keep the waived claim, got %s", state.aggregates.RewardPool)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestCloseEarlyAfterCompletionRejected(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 120)
	owner := makeAddress(0x10)

	if _, err := engine.CloseEarly(owner, daysAfter(120)); !errors.Is(err, ErrPeriodComplete) {
		t.Fatalf("expected ErrPeriodComplete, got %v", err)
	}
}

func TestCloseScheduledBeforeCompletionRejected(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 120)
	owner := makeAddress(0x10)

	if _, err := engine.CloseScheduled(owner, daysAfter(119)); !errors.Is(err, ErrPeriodNotComplete) {
		t.Fatalf("expected ErrPeriodNotComplete, got %v", err)
	}
}

func TestCloseScheduledWithinGraceRatchetsPrice(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	emitter := &captureEmitter{}
	engine.SetEmitter(emitter)
	openFunded(t, engine, state, 365)
	owner := makeAddress(0x10)

	receipt, err := engine.CloseScheduled(owner, daysAfter(370))
	if err != nil {
		t.Fatalf("close scheduled: %v", err)
	}
	if receipt.Scope != events.VaultCloseScopeScheduled {
		t.Fatalf("unexpected scope %q", receipt.Scope)
	}
	if receipt.Penalty.Sign() != 0 {
		t.Fatalf("grace window carries no penalty, got %s", receipt.Penalty)
	}
	if receipt.Payout.Cmp(big.NewInt(1_001_200)) != 0 {
		t.Fatalf("payout: got %s want 1001200", receipt.Payout)
	}
	if !receipt.Ratcheted {
		t.Fatalf("expected the price to ratchet")
	}
	if receipt.SharePrice.Cmp(big.NewInt(10_018)) != 0 {
		t.Fatalf("share price: got %s want 10018", receipt.SharePrice)
	}
	if state.aggregates.SharePrice.Cmp(big.NewInt(10_018)) != 0 {
		t.Fatalf("aggregates price: got %s want 10018", state.aggregates.SharePrice)
	}
	if got := emitter.last(t).EventType(); got != events.TypeVaultPriceRatcheted {
		t.Fatalf("expected a ratchet event last, got %s", got)
	}
	if got := state.balance(owner); got.Cmp(big.NewInt(5_001_200)) != 0 {
		t.Fatalf("owner balance: got %s want 5001200", got)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestCloseScheduledLateChargesPerDay(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 365)
	owner := makeAddress(0x10)

	// 34 days overdue: 20 penalized days beyond the 14-day grace window.
	receipt, err := engine.CloseScheduled(owner, daysAfter(399))
	if err != nil {
		t.Fatalf("close scheduled: %v", err)
	}
	if receipt.Penalty.Cmp(big.NewInt(25_030)) != 0 {
		t.Fatalf("penalty: got %s want 25030", receipt.Penalty)
	}
	if receipt.YieldReturned.Sign() != 0 {
		t.Fatalf("yield is consumed first, got %s back", receipt.YieldReturned)
	}
	if receipt.PrincipalReturned.Cmp(big.NewInt(976_170)) != 0 {
		t.Fatalf("principal returned: got %s want 976170", receipt.PrincipalReturned)
	}
	if receipt.Ratcheted {
		t.Fatalf("a shrunken payout must not ratchet the price")
	}
	if state.aggregates.SharePrice.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("price must hold at 10000, got %s", state.aggregates.SharePrice)
	}
	if state.aggregates.RewardPool.Cmp(big.NewInt(12_516)) != 0 {
		t.Fatalf("pool: got %s want 12516", state.aggregates.RewardPool)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestClosedStakeCannotCloseAgain(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 120)
	owner := makeAddress(0x10)

	if _, err := engine.CloseEarly(owner, daysAfter(60)); err != nil {
		t.Fatalf("close early: %v", err)
	}
	if _, err := engine.CloseEarly(owner, daysAfter(61)); !errors.Is(err, ErrNoActiveStake) {
		t.Fatalf("expected ErrNoActiveStake, got %v", err)
	}
	if _, err := engine.CloseScheduled(owner, daysAfter(200)); !errors.Is(err, ErrNoActiveStake) {
		t.Fatalf("expected ErrNoActiveStake, got %v", err)
	}
}

func TestReopenAfterClosure(t *testing.T) {
	engine := NewEngine(testParams())
	state := newMockEngineState()
	engine.SetState(state)
	openFunded(t, engine, state, 120)
	owner := makeAddress(0x10)

	if _, err := engine.CloseEarly(owner, daysAfter(60)); err != nil {
		t.Fatalf("close early: %v", err)
	}
	stake, err := engine.OpenStake(owner, big.NewInt(500_000), 90, daysAfter(61))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !stake.Active || stake.DurationDays != 90 {
		t.Fatalf("unexpected reopened stake: %+v", stake)
	}
	assertConservation(t, state, engine.ModuleAddress())
}

func TestCustodyConservationAcrossLifecycle(t *testing.T) {
	params := testParams()
	engine := NewEngine(params)
	state := newMockEngineState()
	engine.SetState(state)
	first := makeAddress(0x10)
	second := makeAddress(0x20)
	fund(state, first, 5_000_000)
	fund(state, second, 5_000_000)

	if _, err := engine.OpenStake(first, big.NewInt(1_000_000), 100, testStart); err != nil {
		t.Fatalf("open first: %v", err)
	}
	assertConservation(t, state, engine.ModuleAddress())

	if _, err := engine.OpenStake(second, big.NewInt(2_000_000), 365, testStart); err != nil {
		t.Fatalf("open second: %v", err)
	}
	assertConservation(t, state, engine.ModuleAddress())

	// first holds 1,054,395 shares, second 2,400,000.
	if state.aggregates.TotalShares.Cmp(big.NewInt(3_454_395)) != 0 {
		t.Fatalf("total shares: got %s want 3454395", state.aggregates.TotalShares)
	}

	if _, err := engine.TopUpDaily(params.Authority, big.NewInt(34_543_950_000), testStart+1); err != nil {
		t.Fatalf("top-up: %v", err)
	}
	assertConservation(t, state, engine.ModuleAddress())

	if _, err := engine.CloseEarly(first, daysAfter(60)); err != nil {
		t.Fatalf("close first: %v", err)
	}
	assertConservation(t, state, engine.ModuleAddress())

	receipt, err := engine.CloseScheduled(second, daysAfter(370))
	if err != nil {
		t.Fatalf("close second: %v", err)
	}
	assertConservation(t, state, engine.ModuleAddress())

	if !receipt.Ratcheted {
		t.Fatalf("expected the final closure to ratchet the price")
	}
	if got := state.balance(engine.ModuleAddress()); got.Sign() != 0 {
		t.Fatalf("an emptied vault holds nothing, got %s", got)
	}
	if state.aggregates.RewardPool.Sign() != 0 {
		t.Fatalf("pool must drain with the last stake, got %s", state.aggregates.RewardPool)
	}
	if state.aggregates.TotalShares.Sign() != 0 {
		t.Fatalf("shares must drain with the last stake, got %s", state.aggregates.TotalShares)
	}
	if got := state.balance(params.Treasury); got.Cmp(big.NewInt(219_665)) != 0 {
		t.Fatalf("treasury balance: got %s want 219665", got)
	}
	if state.aggregates.TotalBurned.Cmp(big.NewInt(219_665)) != 0 {
		t.Fatalf("total burned: got %s want 219665", state.aggregates.TotalBurned)
	}
}
