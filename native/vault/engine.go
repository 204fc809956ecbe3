package vault

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"tenure/core/events"
	"tenure/core/types"
	"tenure/crypto"
	nativecommon "tenure/native/common"
	"tenure/observability/metrics"
)

var (
	errNilState   = errors.New("vault engine: state not configured")
	errNilPauses  = errors.New("vault engine: pause registry not configured")
	errNoTreasury = errors.New("vault engine: treasury not configured")
)

type engineState interface {
	VaultGetStake(owner crypto.Address) (*Stake, error)
	VaultPutStake(owner crypto.Address, stake *Stake) error
	VaultGetAggregates() (*Aggregates, error)
	VaultPutAggregates(aggregates *Aggregates) error
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Engine orchestrates the stake lifecycle: opening against the module custody
// account, yield settlement, penalty routing and the share price ratchet. All
// mutations run as one serialized unit against the wired state.
type Engine struct {
	state         engineState
	params        Params
	moduleAddress crypto.Address
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	pauseRegistry *nativecommon.Pauses
	telemetry     *metrics.VaultMetrics
}

// NewEngine constructs a vault engine bound to the given operator parameters.
func NewEngine(params Params) *Engine {
	return &Engine{
		params:        params,
		moduleAddress: ModuleAddress(),
		emitter:       events.Discard,
		telemetry:     metrics.Vault(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event sink used by the engine. Passing nil
// reverts to Discard.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.Discard
		return
	}
	e.emitter = emitter
}

// SetPauses wires the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetPauseRegistry wires the mutable pause registry, enabling SetModulePaused.
// The registry also becomes the guard view.
func (e *Engine) SetPauseRegistry(r *nativecommon.Pauses) {
	if e == nil || r == nil {
		return
	}
	e.pauseRegistry = r
	e.pauses = r
}

// ModuleAddress returns the custody account holding staked principal and the
// pool-backed balance.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddress
}

// OpenStake locks amount from the owner's balance for durationDays, minting
// bonus-weighted shares at the current share price. An account holds at most
// one active stake; reopening after a closure overwrites the historical record.
func (e *Engine) OpenStake(owner crypto.Address, amount *big.Int, durationDays uint64, now int64) (*Stake, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if len(owner.Bytes()) != crypto.AddressLength {
		return nil, ErrInvalidInput
	}
	if sameAddress(owner, e.moduleAddress) {
		return nil, ErrInvalidInput
	}
	if amount == nil || amount.Sign() <= 0 || durationDays == 0 || now <= 0 {
		return nil, ErrInvalidInput
	}

	existing, err := e.state.VaultGetStake(owner)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active {
		return nil, ErrAlreadyActive
	}

	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, err
	}
	quote, err := StakeShares(amount, durationDays, aggregates.SharePrice)
	if err != nil {
		return nil, err
	}
	// Shares must be positive: the scheduled-closure ratchet divides by the
	// stake's share count.
	if quote.Shares.Sign() == 0 {
		return nil, ErrInvalidInput
	}

	ownerAcc, err := e.loadAccount(owner)
	if err != nil {
		return nil, err
	}
	if ownerAcc.Balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: insufficient balance", ErrTransferFailed)
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}

	ownerAcc.Balance = new(big.Int).Sub(ownerAcc.Balance, amount)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, amount)
	if err := e.persistAccount(owner, ownerAcc); err != nil {
		return nil, err
	}
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}

	stake := &Stake{
		Owner:        owner.Array(),
		Principal:    new(big.Int).Set(amount),
		DurationDays: durationDays,
		StartedAt:    uint64(now),
		Shares:       new(big.Int).Set(quote.Shares),
		EarnedYield:  big.NewInt(0),
		Active:       true,
		Payout:       big.NewInt(0),
	}
	if err := e.state.VaultPutStake(owner, stake); err != nil {
		return nil, err
	}

	aggregates.TotalShares = new(big.Int).Add(aggregates.TotalShares, quote.Shares)
	if err := e.state.VaultPutAggregates(aggregates); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultStakeOpened{
		Owner:         stake.Owner,
		Amount:        new(big.Int).Set(amount),
		QuantityBonus: new(big.Int).Set(quote.QuantityBonus),
		TimeBonus:     new(big.Int).Set(quote.TimeBonus),
		Shares:        new(big.Int).Set(quote.Shares),
		SharePrice:    new(big.Int).Set(aggregates.SharePrice),
		DurationDays:  durationDays,
		StartedAt:     now,
	})
	if e.telemetry != nil {
		e.telemetry.ObserveStakeOpened()
		e.telemetry.SetAggregates(aggregates.RewardPool, aggregates.SharePrice, aggregates.TotalShares, aggregates.TotalBurned)
	}
	return stake.Clone(), nil
}

// CloseEarly settles a stake before its natural duration elapses, applying the
// short or long early schedule. Fails with ErrPeriodComplete once the duration
// has passed; the scheduled path must be used instead.
func (e *Engine) CloseEarly(owner crypto.Address, now int64) (*ClosureReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if now <= 0 {
		return nil, ErrInvalidInput
	}
	stake, err := e.activeStake(owner)
	if err != nil {
		return nil, err
	}
	elapsed := elapsedDays(stake.StartedAt, now)
	if elapsed >= stake.DurationDays {
		return nil, ErrPeriodComplete
	}

	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, err
	}
	// A long stake closed on its opening day waives its pool claim entirely;
	// the schedule returns no yield, so the claim stays in the pool.
	settled := big.NewInt(0)
	if stake.DurationDays < ShortStakeDays || elapsed > 0 {
		settled = ProportionalYield(aggregates.RewardPool, stake.Shares, aggregates.TotalShares)
	}
	breakdown := EarlyPenalty(stake.Principal, settled, stake.DurationDays, elapsed)
	return e.finalizeClosure(owner, stake, aggregates, breakdown, settled, events.VaultCloseScopeEarly, elapsed, now)
}

// CloseScheduled settles a stake at or after its natural duration, applying
// the grace window and late schedule, then offers the realised payout to the
// share price ratchet. Fails with ErrPeriodNotComplete while the stake is
// still running.
func (e *Engine) CloseScheduled(owner crypto.Address, now int64) (*ClosureReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if now <= 0 {
		return nil, ErrInvalidInput
	}
	stake, err := e.activeStake(owner)
	if err != nil {
		return nil, err
	}
	elapsed := elapsedDays(stake.StartedAt, now)
	if elapsed < stake.DurationDays {
		return nil, ErrPeriodNotComplete
	}

	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, err
	}
	settled := ProportionalYield(aggregates.RewardPool, stake.Shares, aggregates.TotalShares)
	breakdown := LatePenalty(stake.Principal, settled, elapsed-stake.DurationDays)

	totalPaid := new(big.Int).Add(breakdown.PrincipalReturned, breakdown.YieldReturned)
	price, adopted, err := RatchetPrice(aggregates.SharePrice, totalPaid, stake.Shares, stake.DurationDays)
	if err != nil {
		return nil, err
	}
	oldPrice := aggregates.SharePrice
	aggregates.SharePrice = price

	receipt, err := e.finalizeClosure(owner, stake, aggregates, breakdown, settled, events.VaultCloseScopeScheduled, elapsed, now)
	if err != nil {
		return nil, err
	}
	receipt.Ratcheted = adopted
	if adopted {
		e.emitter.Emit(events.VaultPriceRatcheted{
			Owner:     stake.Owner,
			OldPrice:  new(big.Int).Set(oldPrice),
			NewPrice:  new(big.Int).Set(price),
			TotalPaid: totalPaid,
			Shares:    new(big.Int).Set(stake.Shares),
			At:        now,
		})
	}
	return receipt, nil
}

// finalizeClosure executes the custody legs of a closure and persists the
// closed stake and updated aggregates. The caller has already settled the
// stake's pool claim into breakdown and, on the scheduled path, applied the
// ratchet to aggregates.SharePrice.
func (e *Engine) finalizeClosure(owner crypto.Address, stake *Stake, aggregates *Aggregates, breakdown *PenaltyBreakdown, settled *big.Int, scope string, elapsed uint64, now int64) (*ClosureReceipt, error) {
	payout := new(big.Int).Add(breakdown.PrincipalReturned, breakdown.YieldReturned)
	outbound := new(big.Int).Add(payout, breakdown.Burn)
	outbound.Add(outbound, breakdown.Treasury)

	if breakdown.Treasury.Sign() > 0 && len(e.params.Treasury.Bytes()) != crypto.AddressLength {
		return nil, errNoTreasury
	}
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	if moduleAcc.Balance.Cmp(outbound) < 0 {
		return nil, fmt.Errorf("%w: module custody underfunded", ErrTransferFailed)
	}
	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, outbound)
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.creditAccount(owner, payout); err != nil {
		return nil, err
	}
	if err := e.creditAccount(e.params.Treasury, breakdown.Treasury); err != nil {
		return nil, err
	}

	stake.Active = false
	stake.ClosedAt = uint64(now)
	stake.EarnedYield = new(big.Int).Set(settled)
	stake.Payout = payout
	if err := e.state.VaultPutStake(owner, stake); err != nil {
		return nil, err
	}

	aggregates.TotalShares = new(big.Int).Sub(aggregates.TotalShares, stake.Shares)
	pool := new(big.Int).Sub(aggregates.RewardPool, settled)
	pool.Add(pool, breakdown.Pool)
	aggregates.RewardPool = pool
	aggregates.TotalBurned = new(big.Int).Add(aggregates.TotalBurned, breakdown.Burn)
	if err := e.state.VaultPutAggregates(aggregates); err != nil {
		return nil, err
	}

	receipt := &ClosureReceipt{
		Scope:             scope,
		ElapsedDays:       elapsed,
		PrincipalReturned: new(big.Int).Set(breakdown.PrincipalReturned),
		YieldReturned:     new(big.Int).Set(breakdown.YieldReturned),
		Payout:            payout,
		Penalty:           new(big.Int).Set(breakdown.Penalty),
		Burned:            new(big.Int).Set(breakdown.Burn),
		PoolCredited:      new(big.Int).Set(breakdown.Pool),
		TreasuryPaid:      new(big.Int).Set(breakdown.Treasury),
		SharePrice:        new(big.Int).Set(aggregates.SharePrice),
		ClosedAt:          now,
	}
	e.emitter.Emit(events.VaultStakeClosed{
		Owner:             stake.Owner,
		Scope:             scope,
		ElapsedDays:       elapsed,
		PrincipalReturned: new(big.Int).Set(breakdown.PrincipalReturned),
		YieldReturned:     new(big.Int).Set(breakdown.YieldReturned),
		Payout:            new(big.Int).Set(payout),
		Penalty:           new(big.Int).Set(breakdown.Penalty),
		Burned:            new(big.Int).Set(breakdown.Burn),
		PoolCredited:      new(big.Int).Set(breakdown.Pool),
		TreasuryPaid:      new(big.Int).Set(breakdown.Treasury),
		SharesBurned:      new(big.Int).Set(stake.Shares),
		ClosedAt:          now,
	})
	if e.telemetry != nil {
		e.telemetry.ObserveClosure(scope)
		e.telemetry.AddPenaltyRouted("burn", breakdown.Burn)
		e.telemetry.AddPenaltyRouted("pool", breakdown.Pool)
		e.telemetry.AddPenaltyRouted("treasury", breakdown.Treasury)
		e.telemetry.SetAggregates(aggregates.RewardPool, aggregates.SharePrice, aggregates.TotalShares, aggregates.TotalBurned)
	}
	return receipt, nil
}

// TopUpDaily is the privileged pool replenishment: it mints 0.01% of the
// reported circulating supply into module custody and credits the reward pool
// ledger by the same amount. The supply figure is trusted from the authority.
func (e *Engine) TopUpDaily(authority crypto.Address, currentSupply *big.Int, now int64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !sameAddress(authority, e.params.Authority) {
		return nil, ErrUnauthorized
	}
	if currentSupply == nil || currentSupply.Sign() <= 0 || now <= 0 {
		return nil, ErrInvalidInput
	}

	credited := DailyTopUpAmount(currentSupply)
	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, credited)
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}

	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, err
	}
	aggregates.RewardPool = new(big.Int).Add(aggregates.RewardPool, credited)
	aggregates.LastTopUp = uint64(now)
	if err := e.state.VaultPutAggregates(aggregates); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultPoolToppedUp{
		Authority:   authority.Array(),
		Supply:      new(big.Int).Set(currentSupply),
		Credited:    new(big.Int).Set(credited),
		PoolBalance: new(big.Int).Set(aggregates.RewardPool),
		At:          now,
	})
	if e.telemetry != nil {
		e.telemetry.IncPoolTopUp()
		e.telemetry.SetAggregates(aggregates.RewardPool, aggregates.SharePrice, aggregates.TotalShares, aggregates.TotalBurned)
	}
	return credited, nil
}

// SweepCustody drains the entire module custody balance to the recipient.
// Reserved for incident recovery: it runs even while the module is paused and
// leaves the vault ledger untouched, so aggregates will report an unbacked
// pool until the incident is resolved.
func (e *Engine) SweepCustody(authority, recipient crypto.Address, incidentRef string, now int64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !sameAddress(authority, e.params.Authority) {
		return nil, ErrUnauthorized
	}
	if len(recipient.Bytes()) != crypto.AddressLength || sameAddress(recipient, e.moduleAddress) {
		return nil, ErrInvalidInput
	}
	if now <= 0 {
		return nil, ErrInvalidInput
	}

	moduleAcc, err := e.loadAccount(e.moduleAddress)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(moduleAcc.Balance)
	moduleAcc.Balance = big.NewInt(0)
	if err := e.persistAccount(e.moduleAddress, moduleAcc); err != nil {
		return nil, err
	}
	if err := e.creditAccount(recipient, amount); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.VaultCustodySwept{
		Authority:   authority.Array(),
		Recipient:   recipient.Array(),
		Amount:      new(big.Int).Set(amount),
		IncidentRef: incidentRef,
		At:          now,
	})
	if e.telemetry != nil {
		e.telemetry.IncCustodySweep()
	}
	return amount, nil
}

// SetModulePaused toggles the vault pause flag. Requires the configured
// authority and a wired pause registry.
func (e *Engine) SetModulePaused(authority crypto.Address, paused bool, now int64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !sameAddress(authority, e.params.Authority) {
		return ErrUnauthorized
	}
	if e.pauseRegistry == nil {
		return errNilPauses
	}
	e.pauseRegistry.SetPaused(moduleName, paused)
	e.emitter.Emit(events.VaultPauseChanged{
		Authority: authority.Array(),
		Paused:    paused,
		At:        now,
	})
	return nil
}

// StakeOf returns the owner's latest stake record, active or closed, or nil
// when the account has never staked.
func (e *Engine) StakeOf(owner crypto.Address) (*Stake, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stake, err := e.state.VaultGetStake(owner)
	if err != nil {
		return nil, err
	}
	if stake == nil {
		return nil, nil
	}
	stake.EnsureDefaults()
	return stake.Clone(), nil
}

// ElapsedDays reports whole days since the active stake opened.
func (e *Engine) ElapsedDays(owner crypto.Address, now int64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	stake, err := e.activeStake(owner)
	if err != nil {
		return 0, err
	}
	return elapsedDays(stake.StartedAt, now), nil
}

// IsPeriodComplete reports whether the active stake has served its duration.
func (e *Engine) IsPeriodComplete(owner crypto.Address, now int64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	stake, err := e.activeStake(owner)
	if err != nil {
		return false, err
	}
	return elapsedDays(stake.StartedAt, now) >= stake.DurationDays, nil
}

// ProjectedYield reports the active stake's current proportional claim on the
// reward pool. Informational only; the claim is settled at closure.
func (e *Engine) ProjectedYield(owner crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	stake, err := e.activeStake(owner)
	if err != nil {
		return nil, err
	}
	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, err
	}
	return ProportionalYield(aggregates.RewardPool, stake.Shares, aggregates.TotalShares), nil
}

// PreviewStake quotes the share mint for amount over durationDays at the
// current share price without touching state. The price used is returned
// alongside the quote.
func (e *Engine) PreviewStake(amount *big.Int, durationDays uint64) (*ShareQuote, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, nil, err
	}
	quote, err := StakeShares(amount, durationDays, aggregates.SharePrice)
	if err != nil {
		return nil, nil, err
	}
	return quote, new(big.Int).Set(aggregates.SharePrice), nil
}

// AggregatesSnapshot returns a copy of the vault-wide totals.
func (e *Engine) AggregatesSnapshot() (*Aggregates, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	aggregates, err := e.loadAggregates()
	if err != nil {
		return nil, err
	}
	return aggregates.Clone(), nil
}

func (e *Engine) activeStake(owner crypto.Address) (*Stake, error) {
	if len(owner.Bytes()) != crypto.AddressLength {
		return nil, ErrInvalidInput
	}
	stake, err := e.state.VaultGetStake(owner)
	if err != nil {
		return nil, err
	}
	if stake == nil || !stake.Active {
		return nil, ErrNoActiveStake
	}
	stake.EnsureDefaults()
	return stake, nil
}

func (e *Engine) loadAggregates() (*Aggregates, error) {
	aggregates, err := e.state.VaultGetAggregates()
	if err != nil {
		return nil, err
	}
	if aggregates == nil {
		aggregates = NewAggregates()
	}
	aggregates.EnsureDefaults()
	return aggregates, nil
}

func (e *Engine) loadAccount(addr crypto.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.EnsureDefaults()
	return acc, nil
}

func (e *Engine) persistAccount(addr crypto.Address, acc *types.Account) error {
	return e.state.PutAccount(addr, acc)
}

// creditAccount adds amount to addr with a fresh load so repeated credits to
// the same account within one operation never clobber each other.
func (e *Engine) creditAccount(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := e.loadAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return e.persistAccount(addr, acc)
}

func elapsedDays(startedAt uint64, now int64) uint64 {
	if now <= 0 {
		return 0
	}
	ts := uint64(now)
	if ts <= startedAt {
		return 0
	}
	return (ts - startedAt) / SecondsPerDay
}

func sameAddress(a, b crypto.Address) bool {
	return bytes.Equal(a.Bytes(), b.Bytes())
}
