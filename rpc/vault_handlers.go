package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"tenure/crypto"
	nativecommon "tenure/native/common"
	"tenure/native/vault"
)

const vaultModulePausedMessage = "vault module paused"

type vaultOpenParams struct {
	Owner        string `json:"owner"`
	Amount       string `json:"amount"`
	DurationDays uint64 `json:"durationDays"`
}

type vaultCloseParams struct {
	Owner string `json:"owner"`
}

type vaultPreviewParams struct {
	Amount       string `json:"amount"`
	DurationDays uint64 `json:"durationDays"`
}

type vaultTopUpParams struct {
	Authority     string `json:"authority"`
	CurrentSupply string `json:"currentSupply,omitempty"`
}

type vaultSweepParams struct {
	Authority   string `json:"authority"`
	Recipient   string `json:"recipient"`
	IncidentRef string `json:"incidentRef,omitempty"`
}

type vaultPauseParams struct {
	Authority string `json:"authority"`
	Paused    bool   `json:"paused"`
}

// VaultStakeResult mirrors a stake record with string-encoded amounts.
type VaultStakeResult struct {
	Owner        string `json:"owner"`
	Principal    string `json:"principal"`
	DurationDays uint64 `json:"durationDays"`
	StartedAt    uint64 `json:"startedAt"`
	Shares       string `json:"shares"`
	EarnedYield  string `json:"earnedYield"`
	Active       bool   `json:"active"`
	ClosedAt     uint64 `json:"closedAt,omitempty"`
	Payout       string `json:"payout"`
}

// VaultClosureResult reports the settlement legs of a closed stake.
type VaultClosureResult struct {
	Scope             string `json:"scope"`
	ElapsedDays       uint64 `json:"elapsedDays"`
	PrincipalReturned string `json:"principalReturned"`
	YieldReturned     string `json:"yieldReturned"`
	Payout            string `json:"payout"`
	Penalty           string `json:"penalty"`
	Burned            string `json:"burned"`
	PoolCredited      string `json:"poolCredited"`
	TreasuryPaid      string `json:"treasuryPaid"`
	SharePrice        string `json:"sharePrice"`
	Ratcheted         bool   `json:"ratcheted"`
	ClosedAt          int64  `json:"closedAt"`
}

// VaultPreviewResult quotes a share mint without touching state.
type VaultPreviewResult struct {
	QuantityBonus string `json:"quantityBonus"`
	TimeBonus     string `json:"timeBonus"`
	Effective     string `json:"effective"`
	Shares        string `json:"shares"`
	SharePrice    string `json:"sharePrice"`
}

// VaultAggregatesResult snapshots the vault-wide totals.
type VaultAggregatesResult struct {
	TotalShares   string `json:"totalShares"`
	SharePrice    string `json:"sharePrice"`
	RewardPool    string `json:"rewardPool"`
	LastTopUp     uint64 `json:"lastTopUp"`
	TotalBurned   string `json:"totalBurned"`
	ModuleAddress string `json:"moduleAddress"`
	Paused        bool   `json:"paused"`
}

type VaultTopUpResult struct {
	Credited    string `json:"credited"`
	RewardPool  string `json:"rewardPool"`
	TotalSupply string `json:"totalSupply"`
}

type VaultSweepResult struct {
	Swept       string `json:"swept"`
	Recipient   string `json:"recipient"`
	IncidentRef string `json:"incidentRef"`
}

type VaultPauseResult struct {
	Paused bool `json:"paused"`
}

type VaultElapsedResult struct {
	ElapsedDays uint64 `json:"elapsedDays"`
}

type VaultPeriodCompleteResult struct {
	Complete bool `json:"complete"`
}

type VaultProjectedYieldResult struct {
	ProjectedYield string `json:"projectedYield"`
}

func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseOwnerParam(params []json.RawMessage) (string, crypto.Address, error) {
	if len(params) != 1 {
		return "", crypto.Address{}, fmt.Errorf("owner address parameter required")
	}
	var addrStr string
	if err := json.Unmarshal(params[0], &addrStr); err != nil {
		return "", crypto.Address{}, fmt.Errorf("invalid owner address parameter")
	}
	addr, err := crypto.DecodeAddress(addrStr)
	if err != nil {
		return "", crypto.Address{}, fmt.Errorf("invalid owner address: %w", err)
	}
	return addrStr, addr, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func stakeResult(stake *vault.Stake) VaultStakeResult {
	return VaultStakeResult{
		Owner:        crypto.MustNewAddress(crypto.TenurePrefix, stake.Owner[:]).String(),
		Principal:    bigString(stake.Principal),
		DurationDays: stake.DurationDays,
		StartedAt:    stake.StartedAt,
		Shares:       bigString(stake.Shares),
		EarnedYield:  bigString(stake.EarnedYield),
		Active:       stake.Active,
		ClosedAt:     stake.ClosedAt,
		Payout:       bigString(stake.Payout),
	}
}

func closureResult(receipt *vault.ClosureReceipt) VaultClosureResult {
	return VaultClosureResult{
		Scope:             receipt.Scope,
		ElapsedDays:       receipt.ElapsedDays,
		PrincipalReturned: bigString(receipt.PrincipalReturned),
		YieldReturned:     bigString(receipt.YieldReturned),
		Payout:            bigString(receipt.Payout),
		Penalty:           bigString(receipt.Penalty),
		Burned:            bigString(receipt.Burned),
		PoolCredited:      bigString(receipt.PoolCredited),
		TreasuryPaid:      bigString(receipt.TreasuryPaid),
		SharePrice:        bigString(receipt.SharePrice),
		Ratcheted:         receipt.Ratcheted,
		ClosedAt:          receipt.ClosedAt,
	}
}

// writeVaultError maps engine sentinel errors onto RPC error codes.
func writeVaultError(w http.ResponseWriter, id interface{}, action string, err error) {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, id, codeModulePaused, vaultModulePausedMessage, nil)
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded), errors.Is(err, nativecommon.ErrQuotaAmountExceeded):
		writeError(w, http.StatusTooManyRequests, id, codeRateLimited, fmt.Sprintf("failed to %s", action), err.Error())
	case errors.Is(err, vault.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, "vault authority required", nil)
	case errors.Is(err, vault.ErrInvalidInput), errors.Is(err, vault.ErrInvalidShares):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, fmt.Sprintf("failed to %s", action), err.Error())
	case errors.Is(err, vault.ErrAlreadyActive),
		errors.Is(err, vault.ErrNoActiveStake),
		errors.Is(err, vault.ErrPeriodComplete),
		errors.Is(err, vault.ErrPeriodNotComplete),
		errors.Is(err, vault.ErrTransferFailed):
		writeError(w, http.StatusBadRequest, id, codeServerError, fmt.Sprintf("failed to %s", action), err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, fmt.Sprintf("failed to %s", action), err.Error())
	}
}

func (s *Server) handleVaultOpen(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.guardMutation(w, r, req) {
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return
	}
	var params vaultOpenParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stake, err := s.node.VaultOpen(owner, amount, params.DurationDays, time.Now().Unix())
	if err != nil {
		writeVaultError(w, req.ID, "open stake", err)
		return
	}
	writeResult(w, req.ID, stakeResult(stake))
}

func (s *Server) handleVaultCloseEarly(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleVaultClose(w, r, req, "close stake early", s.node.VaultCloseEarly)
}

func (s *Server) handleVaultCloseScheduled(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleVaultClose(w, r, req, "close stake", s.node.VaultCloseScheduled)
}

func (s *Server) handleVaultClose(w http.ResponseWriter, r *http.Request, req *RPCRequest, action string, close func(crypto.Address, int64) (*vault.ClosureReceipt, error)) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.guardMutation(w, r, req) {
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return
	}
	var params vaultCloseParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner address", err.Error())
		return
	}
	receipt, err := close(owner, time.Now().Unix())
	if err != nil {
		writeVaultError(w, req.ID, action, err)
		return
	}
	writeResult(w, req.ID, closureResult(receipt))
}

func (s *Server) handleVaultGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	_, owner, err := parseOwnerParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stake, err := s.node.VaultStakeOf(owner)
	if err != nil {
		writeVaultError(w, req.ID, "load stake", err)
		return
	}
	if stake == nil {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "stake not found", nil)
		return
	}
	writeResult(w, req.ID, stakeResult(stake))
}

func (s *Server) handleVaultElapsedDays(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	_, owner, err := parseOwnerParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	elapsed, err := s.node.VaultElapsedDays(owner, time.Now().Unix())
	if err != nil {
		writeVaultError(w, req.ID, "report elapsed days", err)
		return
	}
	writeResult(w, req.ID, VaultElapsedResult{ElapsedDays: elapsed})
}

func (s *Server) handleVaultPeriodComplete(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	_, owner, err := parseOwnerParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	complete, err := s.node.VaultPeriodComplete(owner, time.Now().Unix())
	if err != nil {
		writeVaultError(w, req.ID, "check staking period", err)
		return
	}
	writeResult(w, req.ID, VaultPeriodCompleteResult{Complete: complete})
}

func (s *Server) handleVaultProjectedYield(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	_, owner, err := parseOwnerParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	yield, err := s.node.VaultProjectedYield(owner)
	if err != nil {
		writeVaultError(w, req.ID, "project yield", err)
		return
	}
	writeResult(w, req.ID, VaultProjectedYieldResult{ProjectedYield: bigString(yield)})
}

func (s *Server) handleVaultPreview(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return
	}
	var params vaultPreviewParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	quote, price, err := s.node.VaultPreview(amount, params.DurationDays)
	if err != nil {
		writeVaultError(w, req.ID, "preview stake", err)
		return
	}
	writeResult(w, req.ID, VaultPreviewResult{
		QuantityBonus: bigString(quote.QuantityBonus),
		TimeBonus:     bigString(quote.TimeBonus),
		Effective:     bigString(quote.Effective),
		Shares:        bigString(quote.Shares),
		SharePrice:    bigString(price),
	})
}

func (s *Server) handleVaultAggregates(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	aggregates, err := s.node.VaultAggregates()
	if err != nil {
		writeVaultError(w, req.ID, "load aggregates", err)
		return
	}
	writeResult(w, req.ID, VaultAggregatesResult{
		TotalShares:   bigString(aggregates.TotalShares),
		SharePrice:    bigString(aggregates.SharePrice),
		RewardPool:    bigString(aggregates.RewardPool),
		LastTopUp:     aggregates.LastTopUp,
		TotalBurned:   bigString(aggregates.TotalBurned),
		ModuleAddress: s.node.ModuleAddress().String(),
		Paused:        s.node.PauseSnapshot()["vault"],
	})
}

func (s *Server) handleVaultTopUp(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.guardMutation(w, r, req) {
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return
	}
	var params vaultTopUpParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	authority, err := crypto.DecodeAddress(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority address", err.Error())
		return
	}
	// The supply defaults to the node's tracked figure when omitted.
	var currentSupply *big.Int
	if strings.TrimSpace(params.CurrentSupply) != "" {
		currentSupply, err = parseAmount(params.CurrentSupply)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	credited, err := s.node.VaultTopUp(authority, currentSupply, time.Now().Unix())
	if err != nil {
		writeVaultError(w, req.ID, "top up reward pool", err)
		return
	}
	aggregates, err := s.node.VaultAggregates()
	if err != nil {
		writeVaultError(w, req.ID, "load aggregates", err)
		return
	}
	supply, err := s.node.TotalSupply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load supply", err.Error())
		return
	}
	writeResult(w, req.ID, VaultTopUpResult{
		Credited:    bigString(credited),
		RewardPool:  bigString(aggregates.RewardPool),
		TotalSupply: bigString(supply),
	})
}

func (s *Server) handleVaultSweep(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.guardMutation(w, r, req) {
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return
	}
	var params vaultSweepParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	authority, err := crypto.DecodeAddress(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority address", err.Error())
		return
	}
	recipient, err := crypto.DecodeAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", err.Error())
		return
	}
	swept, ref, err := s.node.VaultSweep(authority, recipient, strings.TrimSpace(params.IncidentRef), time.Now().Unix())
	if err != nil {
		writeVaultError(w, req.ID, "sweep custody", err)
		return
	}
	writeResult(w, req.ID, VaultSweepResult{
		Swept:       bigString(swept),
		Recipient:   params.Recipient,
		IncidentRef: ref,
	})
}

func (s *Server) handleVaultPause(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	if !s.guardMutation(w, r, req) {
		return
	}
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
		return
	}
	var params vaultPauseParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	authority, err := crypto.DecodeAddress(params.Authority)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority address", err.Error())
		return
	}
	if err := s.node.VaultSetPaused(authority, params.Paused, time.Now().Unix()); err != nil {
		writeVaultError(w, req.ID, "toggle vault pause", err)
		return
	}
	writeResult(w, req.ID, VaultPauseResult{Paused: params.Paused})
}
