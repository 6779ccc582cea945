package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"tokend/core"
	"tokend/core/events"
	"tokend/observability"
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
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// mutating methods are limited to this sustained rate per source address.
const (
	txRatePerSecond = 1.0
	txRateBurst     = 5
)

// Limiter entries idle longer than the TTL are swept once the table grows past
// the threshold, keeping the per-source map bounded under address churn.
const (
	limiterIdleTTL        = 10 * time.Minute
	limiterSweepThreshold = 1024
)

// ServerConfig carries the transport-level knobs.
type ServerConfig struct {
	// AuthToken, when set, is required as a Bearer token on privileged methods.
	AuthToken string
	// JWTSecret, when set, allows HS256 JWTs as an alternative Bearer credential.
	JWTSecret string
}

// Server exposes the node over JSON-RPC 2.0 plus a websocket event feed.
type Server struct {
	node        *core.Node
	broadcaster *events.Broadcaster
	cfg         ServerConfig

	mu       sync.Mutex
	limiters map[string]*sourceLimiter
	nowFunc  func() time.Time
}

// sourceLimiter pairs a token bucket with its last activity time so idle
// sources can be evicted.
type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewServer constructs a server for the given node. The broadcaster may be nil
// when no event feed is wanted.
func NewServer(node *core.Node, broadcaster *events.Broadcaster, cfg ServerConfig) *Server {
	return &Server{
		node:        node,
		broadcaster: broadcaster,
		cfg:         cfg,
		limiters:    make(map[string]*sourceLimiter),
		nowFunc:     time.Now,
	}
}

// Handler returns the full HTTP surface with tracing middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	mux.HandleFunc("/ws/events", s.handleEvents)
	return otelhttp.NewHandler(mux, "tokend.rpc")
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, nil, &RPCError{Code: codeInvalidRequest, Message: "POST required"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, nil, &RPCError{Code: codeParseError, Message: "failed to read request body"})
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, nil, &RPCError{Code: codeInvalidRequest, Message: "request body too large"})
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, &RPCError{Code: codeParseError, Message: "invalid JSON"})
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeError(w, req.ID, &RPCError{Code: codeInvalidRequest, Message: "invalid JSON-RPC request"})
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r, req.Method, req.Params)
	metrics := observability.RPC()
	if rpcErr != nil {
		metrics.ObserveRequest(req.Method, "error", time.Since(start))
		metrics.ObserveError(req.Method, fmt.Sprintf("%d", rpcErr.Code))
		writeError(w, req.ID, rpcErr)
		return
	}
	metrics.ObserveRequest(req.Method, "ok", time.Since(start))
	writeResult(w, req.ID, result)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

// requireAuth validates the Bearer credential on privileged methods. A static
// token and an HS256 JWT secret are both accepted when configured.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.cfg.AuthToken == "" && s.cfg.JWTSecret == "" {
		return &RPCError{Code: codeUnauthorized, Message: "privileged methods disabled: no RPC credential configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header required"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	credential := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if s.cfg.AuthToken != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(s.cfg.AuthToken)) == 1 {
		return nil
	}
	if s.cfg.JWTSecret != "" {
		_, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err == nil {
			return nil
		}
	}
	return &RPCError{Code: codeUnauthorized, Message: "invalid credential"}
}

// allowSource applies the per-source rate limit for mutating methods.
func (s *Server) allowSource(r *http.Request) *RPCError {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	now := s.nowFunc()
	s.mu.Lock()
	entry, ok := s.limiters[host]
	if !ok {
		if len(s.limiters) >= limiterSweepThreshold {
			s.sweepLimitersLocked(now)
		}
		entry = &sourceLimiter{limiter: rate.NewLimiter(rate.Limit(txRatePerSecond), txRateBurst)}
		s.limiters[host] = entry
	}
	entry.lastSeen = now
	s.mu.Unlock()
	if !entry.limiter.Allow() {
		return &RPCError{Code: codeRateLimited, Message: "rate limit exceeded"}
	}
	return nil
}

// sweepLimitersLocked drops entries idle past the TTL. Caller holds s.mu.
func (s *Server) sweepLimitersLocked(now time.Time) {
	for host, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, host)
		}
	}
}
