package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	vaultDefaultTimeout = 10 * time.Second
	vaultRequestLimit   = 1 << 20 // 1 MiB

	vaultCodeInvalidParams = -32602
	vaultCodeUnauthorized  = -32001
	vaultCodeModulePaused  = -32030
)

// vaultRoutes bridges the REST surface onto the node's JSON-RPC API. The
// gateway authenticates callers itself and speaks to the node with its own
// bearer token.
type vaultRoutes struct {
	target    *url.URL
	client    *http.Client
	timeout   time.Duration
	nodeToken string
	nextID    atomic.Int64
}

type vaultRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type vaultRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type vaultRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *vaultRPCError  `json:"error"`
	status  int
}

type vaultOpenRequest struct {
	Owner        string `json:"owner"`
	Amount       string `json:"amount"`
	DurationDays uint64 `json:"durationDays"`
}

type vaultCloseRequest struct {
	Owner string `json:"owner"`
}

type vaultPreviewRequest struct {
	Amount       string `json:"amount"`
	DurationDays uint64 `json:"durationDays"`
}

type vaultTopUpRequest struct {
	Authority     string `json:"authority"`
	CurrentSupply string `json:"currentSupply,omitempty"`
}

type vaultSweepRequest struct {
	Authority   string `json:"authority"`
	Recipient   string `json:"recipient"`
	IncidentRef string `json:"incidentRef,omitempty"`
}

type vaultPauseRequest struct {
	Authority string `json:"authority"`
	Paused    bool   `json:"paused"`
}

type vaultStakeResult struct {
	Owner     string `json:"owner"`
	Principal string `json:"principal"`
	Shares    string `json:"shares"`
	Active    bool   `json:"active"`
}

type vaultElapsedResult struct {
	ElapsedDays uint64 `json:"elapsedDays"`
}

type vaultPeriodCompleteResult struct {
	Complete bool `json:"complete"`
}

type vaultProjectedYieldResult struct {
	ProjectedYield string `json:"projectedYield"`
}

type vaultYieldSummary struct {
	Address        string `json:"address"`
	Principal      string `json:"principal"`
	Shares         string `json:"shares"`
	ElapsedDays    uint64 `json:"elapsedDays"`
	PeriodComplete bool   `json:"periodComplete"`
	ProjectedYield string `json:"projectedYield"`
}

func newVaultRoutes(target *url.URL, nodeToken string) (*vaultRoutes, error) {
	if target == nil {
		return nil, fmt.Errorf("nil vault target")
	}
	cloned := *target
	if strings.TrimSpace(cloned.Scheme) == "" {
		return nil, fmt.Errorf("vault target scheme required")
	}
	if strings.TrimSpace(cloned.Host) == "" {
		return nil, fmt.Errorf("vault target host required")
	}
	if strings.TrimSpace(cloned.Path) == "" {
		cloned.Path = "/"
	}
	return &vaultRoutes{
		target:    &cloned,
		client:    &http.Client{Timeout: 15 * time.Second},
		timeout:   vaultDefaultTimeout,
		nodeToken: strings.TrimSpace(nodeToken),
	}, nil
}

func (vr *vaultRoutes) mount(r chi.Router) {
	if vr == nil {
		return
	}
	r.Post("/open", vr.openStake)
	r.Post("/close", vr.closeScheduled)
	r.Post("/close-early", vr.closeEarly)
	r.Post("/preview", vr.preview)
	r.Get("/stakes/{address}", vr.getStake)
	r.Get("/stakes/{address}/yield", vr.getStakeYield)
	r.Get("/aggregates", vr.aggregates)
}

func (vr *vaultRoutes) mountAdmin(r chi.Router) {
	if vr == nil {
		return
	}
	r.Post("/topup", vr.topUp)
	r.Post("/sweep", vr.sweep)
	r.Post("/pause", vr.pause)
}

func (vr *vaultRoutes) openStake(w http.ResponseWriter, r *http.Request) {
	var body vaultOpenRequest
	if err := vr.decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Owner) == "" {
		writeBadRequest(w, errors.New("owner is required"))
		return
	}
	if strings.TrimSpace(body.Amount) == "" {
		writeBadRequest(w, errors.New("amount is required"))
		return
	}
	vr.relay(w, r, "vault_open", []interface{}{body})
}

func (vr *vaultRoutes) closeScheduled(w http.ResponseWriter, r *http.Request) {
	vr.closeStake(w, r, "vault_closeScheduled")
}

func (vr *vaultRoutes) closeEarly(w http.ResponseWriter, r *http.Request) {
	vr.closeStake(w, r, "vault_closeEarly")
}

func (vr *vaultRoutes) closeStake(w http.ResponseWriter, r *http.Request, method string) {
	var body vaultCloseRequest
	if err := vr.decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Owner) == "" {
		writeBadRequest(w, errors.New("owner is required"))
		return
	}
	vr.relay(w, r, method, []interface{}{body})
}

func (vr *vaultRoutes) preview(w http.ResponseWriter, r *http.Request) {
	var body vaultPreviewRequest
	if err := vr.decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Amount) == "" {
		writeBadRequest(w, errors.New("amount is required"))
		return
	}
	vr.relay(w, r, "vault_preview", []interface{}{body})
}

func (vr *vaultRoutes) getStake(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))
	if address == "" {
		writeBadRequest(w, errors.New("address is required"))
		return
	}
	vr.relay(w, r, "vault_get", []interface{}{address})
}

// getStakeYield composes the stake record with the node's yield queries into
// a single summary so wallets need one round trip instead of four.
func (vr *vaultRoutes) getStakeYield(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))
	if address == "" {
		writeBadRequest(w, errors.New("address is required"))
		return
	}

	ctx, cancel := vr.context(r.Context())
	defer cancel()

	owner := []interface{}{address}

	stakeResp, err := vr.callRPC(ctx, "vault_get", owner, r)
	if err != nil {
		writeInternalError(w, fmt.Errorf("vault_get failed: %w", err))
		return
	}
	if stakeResp.Error != nil {
		writeRPCError(w, "vault_get", stakeResp)
		return
	}
	var stake vaultStakeResult
	if err := json.Unmarshal(stakeResp.Result, &stake); err != nil {
		writeInternalError(w, fmt.Errorf("decode stake response: %w", err))
		return
	}
	if !stake.Active {
		writeJSONError(w, http.StatusNotFound, errors.New("no active stake for address"))
		return
	}

	yieldResp, err := vr.callRPC(ctx, "vault_projectedYield", owner, r)
	if err != nil {
		writeInternalError(w, fmt.Errorf("vault_projectedYield failed: %w", err))
		return
	}
	if yieldResp.Error != nil {
		writeRPCError(w, "vault_projectedYield", yieldResp)
		return
	}
	var yield vaultProjectedYieldResult
	if err := json.Unmarshal(yieldResp.Result, &yield); err != nil {
		writeInternalError(w, fmt.Errorf("decode yield response: %w", err))
		return
	}

	elapsedResp, err := vr.callRPC(ctx, "vault_elapsedDays", owner, r)
	if err != nil {
		writeInternalError(w, fmt.Errorf("vault_elapsedDays failed: %w", err))
		return
	}
	if elapsedResp.Error != nil {
		writeRPCError(w, "vault_elapsedDays", elapsedResp)
		return
	}
	var elapsed vaultElapsedResult
	if err := json.Unmarshal(elapsedResp.Result, &elapsed); err != nil {
		writeInternalError(w, fmt.Errorf("decode elapsed response: %w", err))
		return
	}

	completeResp, err := vr.callRPC(ctx, "vault_periodComplete", owner, r)
	if err != nil {
		writeInternalError(w, fmt.Errorf("vault_periodComplete failed: %w", err))
		return
	}
	if completeResp.Error != nil {
		writeRPCError(w, "vault_periodComplete", completeResp)
		return
	}
	var complete vaultPeriodCompleteResult
	if err := json.Unmarshal(completeResp.Result, &complete); err != nil {
		writeInternalError(w, fmt.Errorf("decode period response: %w", err))
		return
	}

	summary := vaultYieldSummary{
		Address:        stake.Owner,
		Principal:      stake.Principal,
		Shares:         stake.Shares,
		ElapsedDays:    elapsed.ElapsedDays,
		PeriodComplete: complete.Complete,
		ProjectedYield: yield.ProjectedYield,
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		writeInternalError(w, fmt.Errorf("marshal summary: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (vr *vaultRoutes) aggregates(w http.ResponseWriter, r *http.Request) {
	vr.relay(w, r, "vault_aggregates", []interface{}{})
}

func (vr *vaultRoutes) topUp(w http.ResponseWriter, r *http.Request) {
	var body vaultTopUpRequest
	if err := vr.decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Authority) == "" {
		writeBadRequest(w, errors.New("authority is required"))
		return
	}
	vr.relay(w, r, "vault_topUp", []interface{}{body})
}

func (vr *vaultRoutes) sweep(w http.ResponseWriter, r *http.Request) {
	var body vaultSweepRequest
	if err := vr.decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Authority) == "" {
		writeBadRequest(w, errors.New("authority is required"))
		return
	}
	if strings.TrimSpace(body.Recipient) == "" {
		writeBadRequest(w, errors.New("recipient is required"))
		return
	}
	vr.relay(w, r, "vault_sweep", []interface{}{body})
}

func (vr *vaultRoutes) pause(w http.ResponseWriter, r *http.Request) {
	var body vaultPauseRequest
	if err := vr.decodeRequest(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if strings.TrimSpace(body.Authority) == "" {
		writeBadRequest(w, errors.New("authority is required"))
		return
	}
	vr.relay(w, r, "vault_pause", []interface{}{body})
}

// relay performs one RPC call and passes the node's result through verbatim.
func (vr *vaultRoutes) relay(w http.ResponseWriter, r *http.Request, method string, params interface{}) {
	ctx, cancel := vr.context(r.Context())
	defer cancel()

	rpcResp, err := vr.callRPC(ctx, method, params, r)
	if err != nil {
		writeInternalError(w, fmt.Errorf("%s failed: %w", method, err))
		return
	}
	if rpcResp.Error != nil {
		writeRPCError(w, method, rpcResp)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rpcResp.Result)
}

func (vr *vaultRoutes) callRPC(ctx context.Context, method string, params interface{}, r *http.Request) (*vaultRPCResponse, error) {
	id := vr.nextID.Add(1)
	bodyStruct := vaultRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}
	payload, err := json.Marshal(bodyStruct)
	if err != nil {
		return nil, fmt.Errorf("encode rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, vr.target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if vr.nodeToken != "" {
		req.Header.Set("Authorization", "Bearer "+vr.nodeToken)
	}
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded == "" {
		if host, _, splitErr := net.SplitHostPort(r.RemoteAddr); splitErr == nil {
			forwarded = host
		}
	}
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}

	resp, err := vr.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform rpc request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rpc response: %w", err)
	}
	var rpcResp vaultRPCResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	rpcResp.status = resp.StatusCode
	return &rpcResp, nil
}

func (vr *vaultRoutes) decodeRequest(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	reader := io.LimitReader(r.Body, vaultRequestLimit)
	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (vr *vaultRoutes) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := vr.timeout
	if timeout <= 0 {
		timeout = vaultDefaultTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// writeRPCError translates a node error into the REST error shape, trusting
// the node's HTTP status when it set one.
func writeRPCError(w http.ResponseWriter, method string, rpcResp *vaultRPCResponse) {
	status := rpcResp.status
	if status < http.StatusBadRequest {
		switch rpcResp.Error.Code {
		case vaultCodeInvalidParams:
			status = http.StatusBadRequest
		case vaultCodeUnauthorized:
			status = http.StatusForbidden
		case vaultCodeModulePaused:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
	}
	message := strings.TrimSpace(rpcResp.Error.Message)
	if message == "" {
		message = fmt.Sprintf("%s error", method)
	}
	if detail, ok := rpcResp.Error.Data.(string); ok && strings.TrimSpace(detail) != "" {
		message = message + ": " + strings.TrimSpace(detail)
	}
	writeJSONError(w, status, errors.New(message))
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusInternalServerError, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, _ := json.Marshal(map[string]string{"error": message})
	_, _ = w.Write(payload)
}
