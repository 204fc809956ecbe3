package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tenure/core"
	"tenure/crypto"
)

type fundParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// BalanceResponse reports an account's spendable balance and nonce.
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type SupplyResponse struct {
	TotalSupply string `json:"totalSupply"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", nil)
		return
	}
	var addrStr string
	if err := json.Unmarshal(req.Params[0], &addrStr); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address parameter", err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(addrStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to decode address", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, BalanceResponse{
		Address: addrStr,
		Balance: bigString(account.Balance),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleGetSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	supply, err := s.node.TotalSupply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load supply", err.Error())
		return
	}
	writeResult(w, req.ID, SupplyResponse{TotalSupply: bigString(supply)})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
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
	var params fundParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if _, err := s.node.Fund(addr, amount, time.Now().Unix()); err != nil {
		if errors.Is(err, core.ErrFaucetDisabled) {
			writeError(w, http.StatusForbidden, req.ID, codeServerError, "faucet disabled", nil)
			return
		}
		writeVaultError(w, req.ID, "fund account", err)
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, BalanceResponse{
		Address: params.Address,
		Balance: bigString(account.Balance),
		Nonce:   account.Nonce,
	})
}
