package events

import (
	"math/big"
	"strconv"
	"strings"

	"tenure/core/types"
	"tenure/crypto"
)

const (
	// TypeVaultStakeOpened captures a new stake entering the vault.
	TypeVaultStakeOpened = "vault.stake.opened"
	// TypeVaultStakeClosed captures any closure, early or scheduled.
	TypeVaultStakeClosed = "vault.stake.closed"
	// TypeVaultPoolToppedUp is emitted by the privileged daily top-up.
	TypeVaultPoolToppedUp = "vault.pool.topup"
	// TypeVaultPriceRatcheted signals an upward share price move.
	TypeVaultPriceRatcheted = "vault.price.ratcheted"
	// TypeVaultCustodySwept records an emergency sweep of the module balance.
	TypeVaultCustodySwept = "vault.custody.swept"
	// TypeVaultPauseChanged records a pause toggle on vault mutations.
	TypeVaultPauseChanged = "vault.pause.changed"

	// VaultCloseScopeEarly identifies the early closure path.
	VaultCloseScopeEarly = "early"
	// VaultCloseScopeScheduled identifies the scheduled closure path.
	VaultCloseScopeScheduled = "scheduled"
)

// VaultStakeOpened captures the share mint realised when a stake opens.
type VaultStakeOpened struct {
	Owner         [20]byte
	Amount        *big.Int
	QuantityBonus *big.Int
	TimeBonus     *big.Int
	Shares        *big.Int
	SharePrice    *big.Int
	DurationDays  uint64
	StartedAt     int64
}

// EventType satisfies the Event interface.
func (VaultStakeOpened) EventType() string { return TypeVaultStakeOpened }

// Event converts the structured payload into a broadcastable event.
func (e VaultStakeOpened) Event() *types.Event {
	attrs := map[string]string{
		"owner":        crypto.MustNewAddress(crypto.TenurePrefix, e.Owner[:]).String(),
		"amount":       formatAmount(e.Amount),
		"shares":       formatAmount(e.Shares),
		"sharePrice":   formatAmount(e.SharePrice),
		"durationDays": strconv.FormatUint(e.DurationDays, 10),
		"startedAt":    strconv.FormatInt(e.StartedAt, 10),
	}
	if e.QuantityBonus != nil && e.QuantityBonus.Sign() > 0 {
		attrs["quantityBonus"] = formatAmount(e.QuantityBonus)
	}
	if e.TimeBonus != nil && e.TimeBonus.Sign() > 0 {
		attrs["timeBonus"] = formatAmount(e.TimeBonus)
	}
	return &types.Event{Type: TypeVaultStakeOpened, Attributes: attrs}
}

// VaultStakeClosed captures the payout and forfeiture legs of a closure.
type VaultStakeClosed struct {
	Owner             [20]byte
	Scope             string
	ElapsedDays       uint64
	PrincipalReturned *big.Int
	YieldReturned     *big.Int
	Payout            *big.Int
	Penalty           *big.Int
	Burned            *big.Int
	PoolCredited      *big.Int
	TreasuryPaid      *big.Int
	SharesBurned      *big.Int
	ClosedAt          int64
}

// EventType satisfies the Event interface.
func (VaultStakeClosed) EventType() string { return TypeVaultStakeClosed }

// Event converts the structured payload into a broadcastable event.
func (e VaultStakeClosed) Event() *types.Event {
	attrs := map[string]string{
		"owner":             crypto.MustNewAddress(crypto.TenurePrefix, e.Owner[:]).String(),
		"scope":             strings.TrimSpace(e.Scope),
		"elapsedDays":       strconv.FormatUint(e.ElapsedDays, 10),
		"principalReturned": formatAmount(e.PrincipalReturned),
		"yieldReturned":     formatAmount(e.YieldReturned),
		"payout":            formatAmount(e.Payout),
		"penalty":           formatAmount(e.Penalty),
		"sharesBurned":      formatAmount(e.SharesBurned),
		"closedAt":          strconv.FormatInt(e.ClosedAt, 10),
	}
	if e.Burned != nil && e.Burned.Sign() > 0 {
		attrs["burned"] = formatAmount(e.Burned)
	}
	if e.PoolCredited != nil && e.PoolCredited.Sign() > 0 {
		attrs["poolCredited"] = formatAmount(e.PoolCredited)
	}
	if e.TreasuryPaid != nil && e.TreasuryPaid.Sign() > 0 {
		attrs["treasuryPaid"] = formatAmount(e.TreasuryPaid)
	}
	return &types.Event{Type: TypeVaultStakeClosed, Attributes: attrs}
}

// VaultPoolToppedUp captures the privileged daily reward pool top-up.
type VaultPoolToppedUp struct {
	Authority   [20]byte
	Supply      *big.Int
	Credited    *big.Int
	PoolBalance *big.Int
	At          int64
}

// EventType satisfies the Event interface.
func (VaultPoolToppedUp) EventType() string { return TypeVaultPoolToppedUp }

// Event converts the structured payload into a broadcastable event.
func (e VaultPoolToppedUp) Event() *types.Event {
	attrs := map[string]string{
		"supply":      formatAmount(e.Supply),
		"credited":    formatAmount(e.Credited),
		"poolBalance": formatAmount(e.PoolBalance),
		"at":          strconv.FormatInt(e.At, 10),
	}
	if !zeroAddress(e.Authority) {
		attrs["authority"] = crypto.MustNewAddress(crypto.TenurePrefix, e.Authority[:]).String()
	}
	return &types.Event{Type: TypeVaultPoolToppedUp, Attributes: attrs}
}

// VaultPriceRatcheted captures an upward move of the global share price.
type VaultPriceRatcheted struct {
	Owner     [20]byte
	OldPrice  *big.Int
	NewPrice  *big.Int
	TotalPaid *big.Int
	Shares    *big.Int
	At        int64
}

// EventType satisfies the Event interface.
func (VaultPriceRatcheted) EventType() string { return TypeVaultPriceRatcheted }

// Event converts the structured payload into a broadcastable event.
func (e VaultPriceRatcheted) Event() *types.Event {
	attrs := map[string]string{
		"oldPrice":  formatAmount(e.OldPrice),
		"newPrice":  formatAmount(e.NewPrice),
		"totalPaid": formatAmount(e.TotalPaid),
		"shares":    formatAmount(e.Shares),
		"at":        strconv.FormatInt(e.At, 10),
	}
	if !zeroAddress(e.Owner) {
		attrs["owner"] = crypto.MustNewAddress(crypto.TenurePrefix, e.Owner[:]).String()
	}
	return &types.Event{Type: TypeVaultPriceRatcheted, Attributes: attrs}
}

// VaultCustodySwept records an emergency drain of the module custody balance.
type VaultCustodySwept struct {
	Authority   [20]byte
	Recipient   [20]byte
	Amount      *big.Int
	IncidentRef string
	At          int64
}

// EventType satisfies the Event interface.
func (VaultCustodySwept) EventType() string { return TypeVaultCustodySwept }

// Event converts the structured payload into a broadcastable event.
func (e VaultCustodySwept) Event() *types.Event {
	attrs := map[string]string{
		"authority": crypto.MustNewAddress(crypto.TenurePrefix, e.Authority[:]).String(),
		"recipient": crypto.MustNewAddress(crypto.TenurePrefix, e.Recipient[:]).String(),
		"amount":    formatAmount(e.Amount),
		"at":        strconv.FormatInt(e.At, 10),
	}
	if ref := strings.TrimSpace(e.IncidentRef); ref != "" {
		attrs["incidentRef"] = ref
	}
	return &types.Event{Type: TypeVaultCustodySwept, Attributes: attrs}
}

// VaultPauseChanged records a pause toggle on vault mutations.
type VaultPauseChanged struct {
	Authority [20]byte
	Paused    bool
	At        int64
}

// EventType satisfies the Event interface.
func (VaultPauseChanged) EventType() string { return TypeVaultPauseChanged }

// Event converts the structured payload into a broadcastable event.
func (e VaultPauseChanged) Event() *types.Event {
	attrs := map[string]string{
		"paused": strconv.FormatBool(e.Paused),
		"at":     strconv.FormatInt(e.At, 10),
	}
	if !zeroAddress(e.Authority) {
		attrs["authority"] = crypto.MustNewAddress(crypto.TenurePrefix, e.Authority[:]).String()
	}
	return &types.Event{Type: TypeVaultPauseChanged, Attributes: attrs}
}
