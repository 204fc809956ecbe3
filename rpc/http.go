package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"tenure/core"
	"tenure/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	authTokenEnv              = "TENURE_RPC_TOKEN"
	defaultRateLimitPerMinute = 120
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeModulePaused   = -32030
)

// ServerConfig carries the operator knobs for the JSON-RPC server.
type ServerConfig struct {
	// AuthToken protects privileged methods. Falls back to TENURE_RPC_TOKEN
	// when empty.
	AuthToken string
	// TrustProxyHeaders enables X-Forwarded-For as the rate limit identity.
	// Only switch this on behind a proxy that sanitises the header.
	TrustProxyHeaders bool
	// RateLimitPerMinute caps mutating requests per client source.
	RateLimitPerMinute int
}

type Server struct {
	node *core.Node

	authToken         string
	trustProxyHeaders bool
	perMinute         int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	httpServer *http.Server
}

func NewServer(node *core.Node, cfg ServerConfig) *Server {
	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(authTokenEnv))
	}
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = defaultRateLimitPerMinute
	}
	return &Server{
		node:              node,
		authToken:         token,
		trustProxyHeaders: cfg.TrustProxyHeaders,
		perMinute:         perMinute,
		limiters:          make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP handler serving JSON-RPC, the event stream and the
// operational endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start serves on addr until the listener fails or Shutdown is invoked.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("starting JSON-RPC server", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the status ultimately written so handle can report
// request metrics without threading the code through every handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	req := &RPCRequest{}
	defer func() {
		observability.ModuleMetrics().Observe(methodModule(req.Method), req.Method, rec.status, time.Since(started))
	}()

	reader := http.MaxBytesReader(rec, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	rec.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(rec, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(rec, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	if err := json.Unmarshal(body, req); err != nil {
		writeError(rec, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	switch req.Method {
	case "vault_open":
		s.handleVaultOpen(rec, r, req)
	case "vault_closeEarly":
		s.handleVaultCloseEarly(rec, r, req)
	case "vault_closeScheduled":
		s.handleVaultCloseScheduled(rec, r, req)
	case "vault_get":
		s.handleVaultGet(rec, r, req)
	case "vault_elapsedDays":
		s.handleVaultElapsedDays(rec, r, req)
	case "vault_periodComplete":
		s.handleVaultPeriodComplete(rec, r, req)
	case "vault_projectedYield":
		s.handleVaultProjectedYield(rec, r, req)
	case "vault_preview":
		s.handleVaultPreview(rec, r, req)
	case "vault_aggregates":
		s.handleVaultAggregates(rec, r, req)
	case "vault_topUp":
		s.handleVaultTopUp(rec, r, req)
	case "vault_sweep":
		s.handleVaultSweep(rec, r, req)
	case "vault_pause":
		s.handleVaultPause(rec, r, req)
	case "tenure_getBalance":
		s.handleGetBalance(rec, r, req)
	case "tenure_getSupply":
		s.handleGetSupply(rec, r, req)
	case "tenure_fund":
		s.handleFund(rec, r, req)
	default:
		writeError(rec, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func methodModule(method string) string {
	if i := strings.Index(method, "_"); i > 0 {
		return method[:i]
	}
	return "unknown"
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[source]
	if !ok {
		perSecond := float64(s.perMinute) / 60.0
		if perSecond <= 0 {
			perSecond = 1
		}
		limiter = rate.NewLimiter(rate.Limit(perSecond), s.perMinute)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

// guardMutation applies the per-source rate limit shared by all mutating
// methods. Authentication is separate; handlers call requireAuth first.
func (s *Server) guardMutation(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if s.node == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "node unavailable", nil)
		return false
	}
	source := s.clientSource(r)
	if !s.allowSource(source) {
		observability.ModuleMetrics().RecordThrottle(methodModule(req.Method), "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", source)
		return false
	}
	return true
}

func (s *Server) clientSource(r *http.Request) string {
	if s.trustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if len(parts) > 0 {
				candidate := strings.TrimSpace(parts[0])
				if candidate != "" {
					return candidate
				}
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
