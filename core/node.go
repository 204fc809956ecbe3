package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"tenure/core/events"
	"tenure/core/state"
	"tenure/core/types"
	"tenure/crypto"
	nativecommon "tenure/native/common"
	"tenure/native/vault"
	"tenure/storage"
)

// ErrFaucetDisabled is returned when funding is requested on a node that has
// the dev faucet switched off.
var ErrFaucetDisabled = errors.New("node: faucet disabled")

// Config captures the operator-controlled settings of a node.
type Config struct {
	Params        vault.Params
	FaucetEnabled bool
	// FaucetQuota meters tenure_fund per recipient address. The zero value
	// leaves the faucet unmetered.
	FaucetQuota nativecommon.Quota
}

// Node is the central controller, wiring storage, ledger state and the vault
// engine together. All state mutations are serialized through stateMu.
type Node struct {
	db     storage.Database
	state  *state.Manager
	engine *vault.Engine
	pauses *nativecommon.Pauses

	faucetEnabled bool
	faucetQuota   nativecommon.Quota
	faucetUsage   map[[20]byte]nativecommon.QuotaUsage

	stateMu sync.Mutex

	eventMu      sync.Mutex
	eventSubs    map[uint64]chan EventUpdate
	eventSeq     uint64
	eventNextID  uint64
	eventHistory []EventUpdate
}

func NewNode(db storage.Database, cfg Config) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node requires a database")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	node := &Node{
		db:            db,
		state:         state.NewManager(db),
		pauses:        nativecommon.NewPauses(),
		faucetEnabled: cfg.FaucetEnabled,
		faucetQuota:   cfg.FaucetQuota,
		faucetUsage:   make(map[[20]byte]nativecommon.QuotaUsage),
		eventSubs:     make(map[uint64]chan EventUpdate),
	}

	engine := vault.NewEngine(cfg.Params)
	engine.SetState(node.state)
	engine.SetEmitter(vaultEventEmitter{node: node})
	engine.SetPauseRegistry(node.pauses)
	node.engine = engine

	return node, nil
}

// ModuleAddress exposes the custody account the vault engine operates on.
func (n *Node) ModuleAddress() crypto.Address {
	return n.engine.ModuleAddress()
}

// --- Vault operations ---

// VaultOpen locks amount from owner for durationDays.
func (n *Node) VaultOpen(owner crypto.Address, amount *big.Int, durationDays uint64, now int64) (*vault.Stake, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.OpenStake(owner, amount, durationDays, now)
}

// VaultCloseEarly settles owner's stake before its period completes.
func (n *Node) VaultCloseEarly(owner crypto.Address, now int64) (*vault.ClosureReceipt, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.CloseEarly(owner, now)
}

// VaultCloseScheduled settles owner's stake once its period has completed.
func (n *Node) VaultCloseScheduled(owner crypto.Address, now int64) (*vault.ClosureReceipt, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.CloseScheduled(owner, now)
}

// VaultStakeOf returns the stake record for owner, nil when none exists.
func (n *Node) VaultStakeOf(owner crypto.Address) (*vault.Stake, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.StakeOf(owner)
}

// VaultElapsedDays reports the whole days elapsed on owner's active stake.
func (n *Node) VaultElapsedDays(owner crypto.Address, now int64) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ElapsedDays(owner, now)
}

// VaultPeriodComplete reports whether owner's active stake has run its term.
func (n *Node) VaultPeriodComplete(owner crypto.Address, now int64) (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.IsPeriodComplete(owner, now)
}

// VaultProjectedYield previews the pool share owner's stake would settle now.
func (n *Node) VaultProjectedYield(owner crypto.Address) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.ProjectedYield(owner)
}

// VaultPreview quotes the shares a stake of amount/durationDays would mint at
// the current price, without touching state.
func (n *Node) VaultPreview(amount *big.Int, durationDays uint64) (*vault.ShareQuote, *big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.PreviewStake(amount, durationDays)
}

// VaultAggregates returns a snapshot of the vault-wide totals.
func (n *Node) VaultAggregates() (*vault.Aggregates, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.AggregatesSnapshot()
}

// VaultTopUp mints the daily reward into the pool. A nil currentSupply uses
// the node's tracked native supply; the minted credit is added back to that
// tracked figure either way.
func (n *Node) VaultTopUp(authority crypto.Address, currentSupply *big.Int, now int64) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	supply := currentSupply
	if supply == nil {
		tracked, err := n.state.TotalSupply()
		if err != nil {
			return nil, err
		}
		supply = tracked
	}
	credited, err := n.engine.TopUpDaily(authority, supply, now)
	if err != nil {
		return nil, err
	}
	total, err := n.state.AdjustSupply(credited)
	if err != nil {
		return nil, err
	}
	n.publishEvent(events.TokenSupply{
		Total:  total,
		Delta:  credited,
		Reason: events.SupplyReasonTopUp,
		At:     now,
	}.Event())
	return credited, nil
}

// VaultSweep drains the module custody account to recipient. An empty
// incident reference gets a generated one; the used reference is returned.
func (n *Node) VaultSweep(authority, recipient crypto.Address, incidentRef string, now int64) (*big.Int, string, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if incidentRef == "" {
		incidentRef = uuid.NewString()
	}
	swept, err := n.engine.SweepCustody(authority, recipient, incidentRef, now)
	if err != nil {
		return nil, "", err
	}
	return swept, incidentRef, nil
}

// VaultSetPaused toggles the vault mutation guard.
func (n *Node) VaultSetPaused(authority crypto.Address, paused bool, now int64) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.SetModulePaused(authority, paused, now)
}

// PauseSnapshot reports the currently halted modules.
func (n *Node) PauseSnapshot() map[string]bool {
	return n.pauses.Snapshot()
}

// --- Ledger queries and the dev faucet ---

// GetAccount loads the ledger entry for addr, substituting a zeroed account
// for addresses that never transacted.
func (n *Node) GetAccount(addr crypto.Address) (*types.Account, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	account, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	return account, nil
}

// TotalSupply returns the tracked native token supply.
func (n *Node) TotalSupply() (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.TotalSupply()
}

// Fund mints amount to addr and returns the new balance. Only available when
// the faucet is enabled in configuration.
func (n *Node) Fund(addr crypto.Address, amount *big.Int, now int64) (*big.Int, error) {
	if !n.faucetEnabled {
		return nil, ErrFaucetDisabled
	}
	if len(addr.Bytes()) != crypto.AddressLength {
		return nil, vault.ErrInvalidInput
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, vault.ErrInvalidInput
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	usage, metered, err := n.chargeFaucetQuota(addr, amount, now)
	if err != nil {
		return nil, err
	}

	account, err := n.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &types.Account{}
	}
	account.EnsureDefaults()
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := n.state.PutAccount(addr, account); err != nil {
		return nil, err
	}
	total, err := n.state.AdjustSupply(amount)
	if err != nil {
		return nil, err
	}
	if metered {
		n.faucetUsage[addr.Array()] = usage
	}
	n.publishEvent(events.TokenSupply{
		Total:  total,
		Delta:  amount,
		Reason: events.SupplyReasonFaucet,
		At:     now,
	}.Event())
	return new(big.Int).Set(account.Balance), nil
}

// chargeFaucetQuota validates the mint against the per-address faucet quota.
// The charged usage is only recorded by the caller once the mint commits.
func (n *Node) chargeFaucetQuota(addr crypto.Address, amount *big.Int, now int64) (nativecommon.QuotaUsage, bool, error) {
	if !n.faucetQuota.Enforced() {
		return nativecommon.QuotaUsage{}, false, nil
	}
	var charge uint64
	if n.faucetQuota.MaxAmountPerEpoch > 0 {
		if !amount.IsUint64() {
			return nativecommon.QuotaUsage{}, false, nativecommon.ErrQuotaAmountExceeded
		}
		charge = amount.Uint64()
	}
	usage, err := n.faucetQuota.Apply(n.faucetQuota.Epoch(now), n.faucetUsage[addr.Array()], charge)
	if err != nil {
		return nativecommon.QuotaUsage{}, false, err
	}
	return usage, true, nil
}
