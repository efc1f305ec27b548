package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"marketd/core"
	"marketd/native/market"
	"marketd/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

const (
	codeMarketNotFound     = -32030
	codeMarketForbidden    = -32031
	codeMarketConflict     = -32032
	codeMarketPrecondition = -32033
	codeMarketTransfer     = -32034
)

// Server exposes the market engines over JSON-RPC 2.0.
type Server struct {
	node      *core.Node
	authToken string
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *observability.MarketMetrics
}

// NewServer creates an RPC server bound to the node. An empty auth token
// disables bearer authentication; mutating methods are then open, which is
// only acceptable for local development.
func NewServer(node *core.Node, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(authToken),
		limiter:   rate.NewLimiter(rate.Limit(50), 100),
		logger:    logger,
		metrics:   observability.Market(),
	}
}

// Router builds the HTTP routing table: the JSON-RPC endpoint plus health and
// metrics probes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return r
}

// Start serves RPC requests on the given address until the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
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
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) routes() (map[string]handlerFunc, map[string]bool) {
	handlers := map[string]handlerFunc{
		"market_getListing":             s.handleGetListing,
		"market_getAuction":             s.handleGetAuction,
		"market_getBids":                s.handleGetBids,
		"market_getEscrow":              s.handleGetEscrow,
		"market_getParams":              s.handleGetParams,
		"market_listItem":               s.handleListItem,
		"market_updateListing":          s.handleUpdateListing,
		"market_cancelListing":          s.handleCancelListing,
		"market_buyItem":                s.handleBuyItem,
		"market_confirmListingDelivery": s.handleConfirmListingDelivery,
		"market_createAuction":          s.handleCreateAuction,
		"market_updateReservePrice":     s.handleUpdateReservePrice,
		"market_updateStartTime":        s.handleUpdateStartTime,
		"market_updateEndTime":          s.handleUpdateEndTime,
		"market_placeBid":               s.handlePlaceBid,
		"market_withdrawBid":            s.handleWithdrawBid,
		"market_cancelAuction":          s.handleCancelAuction,
		"market_resolveAuction":         s.handleResolveAuction,
		"market_confirmAuctionDelivery": s.handleConfirmAuctionDelivery,
		"market_payoutEscrow":           s.handlePayoutEscrow,
		"market_registerAsset":          s.handleRegisterAsset,
		"market_setApproval":            s.handleSetApproval,
		"market_deposit":                s.handleDeposit,
		"market_depositItem":            s.handleDepositItem,
		"market_getBalance":             s.handleGetBalance,
	}
	mutating := map[string]bool{}
	for method := range handlers {
		if !strings.HasPrefix(method, "market_get") {
			mutating[method] = true
		}
	}
	return handlers, mutating
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate_limited", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "invalid_request", "request body too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse_error", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid_request", "unsupported jsonrpc version")
		return
	}
	handlers, mutating := s.routes()
	handler, ok := handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method_not_found", req.Method)
		s.metrics.ObserveRPC(req.Method, "unknown", time.Since(start))
		return
	}
	if mutating[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			s.metrics.ObserveRPC(req.Method, "unauthorized", time.Since(start))
			return
		}
	}
	handler(w, r, &req)
	s.metrics.ObserveRPC(req.Method, "handled", time.Since(start))
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid bearer token"}
	}
	return nil
}

// writeEngineError maps engine error categories onto RPC error codes.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	var (
		status = http.StatusBadRequest
		code   = codeServerError
		label  = "server_error"
	)
	switch {
	case errors.Is(err, market.ErrListingNotFound), errors.Is(err, market.ErrAuctionNotFound), errors.Is(err, market.ErrNoLiveBid):
		status, code, label = http.StatusNotFound, codeMarketNotFound, "not_found"
	case errors.Is(err, market.ErrUnauthorized):
		status, code, label = http.StatusForbidden, codeMarketForbidden, "forbidden"
	case errors.Is(err, market.ErrListingExists), errors.Is(err, market.ErrAuctionExists), errors.Is(err, market.ErrDuplicateBid):
		status, code, label = http.StatusConflict, codeMarketConflict, "conflict"
	case errors.Is(err, market.ErrTransferFailed):
		status, code, label = http.StatusConflict, codeMarketTransfer, "transfer_failed"
	case errors.Is(err, market.ErrPrecondition), errors.Is(err, market.ErrEscrowEmpty), errors.Is(err, market.ErrInvalidConfig):
		status, code, label = http.StatusBadRequest, codeMarketPrecondition, "precondition_failed"
	case errors.Is(err, market.ErrReentrancy):
		status, code, label = http.StatusConflict, codeMarketConflict, "busy"
	}
	s.metrics.ObserveRPCError(req.Method, fmt.Sprintf("%d", code))
	writeError(w, status, req.ID, code, label, err.Error())
}
