package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ethpool/native/pool"
	"ethpool/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20
	metricsModule   = "pool"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeRejected       = -32050

	shutdownGrace = 5 * time.Second
)

// Engine is the ledger surface exposed over JSON-RPC.
type Engine interface {
	Stake(caller common.Address, amount *big.Int) (*pool.StakeReceipt, error)
	Unstake(caller common.Address) (*pool.UnstakeReceipt, error)
	EmergencyUnstake(caller common.Address) (*pool.UnstakeReceipt, error)
	ConfigureNextEpoch(caller common.Address, amount *big.Int, cutoff int64) (pool.StagedEpoch, error)
	AdjustPendingAmount(caller common.Address, amount *big.Int) (pool.StagedEpoch, error)
	AdjustPendingCutoff(caller common.Address, cutoff int64) (pool.StagedEpoch, error)
	DepositEpochReward(caller common.Address, amount *big.Int) (*pool.DepositReceipt, error)
	GrantRole(caller common.Address, role string, member common.Address) error
	RevokeRole(caller common.Address, role string, member common.Address) error

	CurrentEpochID() (uint64, error)
	GetEpoch(id uint64) (*pool.Epoch, error)
	GetAccount(addr common.Address) (*pool.Account, error)
	GetPendingRewards(addr common.Address) (*big.Int, error)
	GetCurrentRewardDate() (int64, error)
	GetCurrentStakeLimitDate() (int64, error)
	GetCurrentPromisedRewards() (*big.Int, error)
	GetPendingEpoch() (pool.NextEpoch, error)
	Ledger() (pool.LedgerSummary, error)
	Epochs(from uint64, limit int) ([]*pool.Epoch, error)
	HasRole(role string, addr common.Address) bool
}

// Config controls the HTTP surface.
type Config struct {
	JWTSecret          string
	JWTIssuer          string
	RateLimitPerSecond float64
	RateLimitBurst     int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	AllowedOrigins     []string
	// EventBuffer is the per-subscriber queue length of the websocket stream.
	EventBuffer int
}

// RPCRequest is a JSON-RPC 2.0 request with positional parameters.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// failure carries the HTTP status alongside the JSON-RPC error.
type failure struct {
	status int
	err    *RPCError
}

func (f *failure) Error() string { return f.err.Error() }

func invalidParams(message string, data interface{}) error {
	return &failure{status: http.StatusBadRequest, err: &RPCError{Code: codeInvalidParams, Message: message, Data: data}}
}

// Server serves the pool JSON-RPC API, the event stream, health and metrics.
type Server struct {
	engine  Engine
	cfg     Config
	logger  *slog.Logger
	auth    *Authenticator
	limiter *rateLimiter
	hub     *EventHub
	events  EventSource
	methods map[string]method
	router  http.Handler
}

// NewServer builds a server around engine. The caller registers Events() as
// an emitter on the engine so committed events reach websocket clients.
func NewServer(engine Engine, cfg Config, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("rpc: engine required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("rpc: jwt secret required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
		auth:    NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		limiter: newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		hub:     NewEventHub(cfg.EventBuffer),
	}
	s.methods = s.poolMethods()
	s.router = s.routes()
	return s, nil
}

// Events returns the hub that fans committed events out to websocket clients.
func (s *Server) Events() *EventHub { return s.hub }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors(s.cfg.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.engine.CurrentEpochID(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	var rpcHandler http.Handler = http.HandlerFunc(s.handle)
	if s.cfg.WriteTimeout > 0 {
		rpcHandler = http.TimeoutHandler(rpcHandler, s.cfg.WriteTimeout, `{"jsonrpc":"2.0","id":null,"error":{"code":-32000,"message":"request timed out"}}`)
	}
	r.With(s.limiter.middleware).Handle("/rpc", otelhttp.NewHandler(rpcHandler, "pool.rpc"))
	r.Get("/ws/events", s.handleEvents)
	return r
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("rpc server listening", slog.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = recorder
	w.Header().Set("Content-Type", "application/json")

	var req RPCRequest
	defer func() {
		label := req.Method
		if _, known := s.methods[label]; !known {
			label = "unknown"
		}
		observability.ModuleMetrics().Observe(metricsModule, label, recorder.status, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "only POST is supported", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to parse request", err.Error())
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid json-rpc request", nil)
		return
	}
	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	c := &call{ctx: r.Context(), req: &req}
	if m.write {
		caller, err := s.auth.Caller(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", err.Error())
			return
		}
		c.caller = caller
	}
	if err := c.arity(m.minParams, m.maxParams); err != nil {
		s.writeFailure(w, req.ID, err)
		return
	}
	result, err := m.fn(c)
	if err != nil {
		s.writeFailure(w, req.ID, err)
		return
	}
	if m.write {
		s.logger.Info("rpc operation committed",
			slog.String("op", req.Method),
			slog.String("account", c.caller.Hex()))
	}
	writeResult(w, req.ID, result)
}

// writeFailure maps handler errors onto JSON-RPC error codes.
func (s *Server) writeFailure(w http.ResponseWriter, id interface{}, err error) {
	var f *failure
	switch {
	case errors.As(err, &f):
		writeError(w, f.status, id, f.err.Code, f.err.Message, f.err.Data)
	case errors.Is(err, pool.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, "unauthorized", map[string]string{"reason": err.Error()})
	case pool.IsRejection(err):
		writeError(w, http.StatusConflict, id, codeRejected, "operation rejected", map[string]string{"reason": err.Error()})
	default:
		s.logger.Error("rpc handler failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
	}
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, ok := allowed[origin]
				_, wildcard := allowed["*"]
				if ok || wildcard {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Add("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
