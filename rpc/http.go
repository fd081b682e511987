// Package rpc exposes the submission, query, and audit interfaces over
// JSON-RPC 2.0.
package rpc

import (
	"bytes"
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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"powergrid/archive"
	"powergrid/core"
	"powergrid/observability"
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
	codeStale          = -32010
	codeRateLimited    = -32020
)

// authTokenEnv names the environment variable carrying the bearer token that
// guards mutating methods. Unset means mutating methods are open, which is
// only sensible on a private listener.
const authTokenEnv = "POWERGRID_RPC_TOKEN"

// RateLimit bounds per-client request rates for the whole RPC surface.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
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

// Server dispatches JSON-RPC calls onto a core node. Verdicts from the audit
// method are recorded into the archive when one is configured.
type Server struct {
	node    *core.Node
	archive *archive.Archive
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.ProtocolMetrics

	authToken string
	limit     RateLimit
	mu        sync.Mutex
	visitors  map[string]*rate.Limiter
}

// NewServer builds a server over the node. A nil archive disables verdict
// recording; a zero rate limit disables throttling.
func NewServer(node *core.Node, verdicts *archive.Archive, logger *slog.Logger, limit RateLimit) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		archive:   verdicts,
		logger:    logger,
		tracer:    otel.Tracer("powergrid-rpc"),
		metrics:   observability.Protocol(),
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
		limit:     limit,
		visitors:  make(map[string]*rate.Limiter),
	}
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(listenAddr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/transitions", s.handleTransitionsWS)
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allow(r) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	requestID := uuid.NewString()
	ctx, span := s.tracer.Start(r.Context(), req.Method,
		trace.WithAttributes(attribute.String("rpc.request_id", requestID)))
	defer span.End()
	r = r.WithContext(ctx)
	logger := s.logger.With("method", req.Method, "request_id", requestID)

	switch req.Method {
	case "power_submitTransition":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleSubmitTransition(w, req, logger)
	case "power_appendParticipant":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleAppendParticipant(w, req, logger)
	case "power_audit":
		// Audits consume a transition index, so they are mutating too.
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleAudit(w, r, req, logger)
	case "power_currentIndex":
		s.handleCurrentIndex(w, req)
	case "power_powerState":
		s.handlePowerState(w, req)
	case "power_snapshotAt":
		s.handleSnapshotAt(w, req)
	case "power_canonicalDiff":
		s.handleCanonicalDiff(w, req)
	case "power_feePool":
		s.handleFeePool(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

func (s *Server) allow(r *http.Request) bool {
	if s.limit.RequestsPerSecond <= 0 {
		return true
	}
	client := clientID(r)
	s.mu.Lock()
	limiter, ok := s.visitors[client]
	if !ok {
		burst := s.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.limit.RequestsPerSecond), burst)
		s.visitors[client] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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
