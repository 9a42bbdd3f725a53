package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/petal-labs/pez/dispenser"
	"github.com/petal-labs/pez/sequence"
)

const defaultRetryAfter = time.Hour

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Dispenser *dispenser.Service
	Forward   *sequence.Engine
	Backward  *sequence.Engine

	// MaxCount bounds the count parameter of batch requests.
	MaxCount int

	// RetryAfter is advertised on 503 responses (default 1h).
	RetryAfter time.Duration

	// Probe feeds /health; nil reports healthy.
	Probe *StoreProbe

	// Metrics enables request instrumentation and GET /metrics.
	Metrics *HTTPMetrics

	CORSOrigin string
	Logger     *slog.Logger
}

// Server is the pez HTTP API server.
type Server struct {
	dispenser  *dispenser.Service
	forward    *sequence.Engine
	backward   *sequence.Engine
	maxCount   int
	retryAfter time.Duration
	probe      *StoreProbe
	metrics    *HTTPMetrics
	corsOrigin string
	logger     *slog.Logger
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Dispenser == nil {
		return nil, errors.New("server: dispenser is nil")
	}
	if cfg.Forward == nil || cfg.Backward == nil {
		return nil, errors.New("server: forward and backward sequences are required")
	}
	if cfg.MaxCount <= 0 {
		return nil, errors.New("server: max count must be positive")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryAfter := cfg.RetryAfter
	if retryAfter < time.Second {
		retryAfter = defaultRetryAfter
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	return &Server{
		dispenser:  cfg.Dispenser,
		forward:    cfg.Forward,
		backward:   cfg.Backward,
		maxCount:   cfg.MaxCount,
		retryAfter: retryAfter,
		probe:      cfg.Probe,
		metrics:    cfg.Metrics,
		corsOrigin: corsOrigin,
		logger:     logger,
	}, nil
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.route(mux, "GET /health", "/health", http.HandlerFunc(s.handleHealth))

	// v1: one value per request.
	s.route(mux, "GET /v1/forward", "/v1/forward", s.api(s.handleDispenseOne(s.forward)))
	s.route(mux, "GET /v1/reverse", "/v1/reverse", s.api(s.handleDispenseOne(s.backward)))

	// v2: batches and a capability description.
	s.route(mux, "GET /v2/forward", "/v2/forward", s.api(s.handleDispenseBatch(s.forward)))
	s.route(mux, "GET /v2/reverse", "/v2/reverse", s.api(s.handleDispenseBatch(s.backward)))
	s.route(mux, "OPTIONS /v2/forward", "/v2/forward", s.api(s.handleBatchOptions))
	s.route(mux, "OPTIONS /v2/reverse", "/v2/reverse", s.api(s.handleBatchOptions))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	if s.metrics != nil {
		h = s.metrics.Instrument(name, h)
	}
	mux.Handle(pattern, h)
}

// --- Middleware ---

// corsMiddleware answers CORS preflights directly. Plain OPTIONS requests
// without Access-Control-Request-Method reach the routes, which is how the
// v2 capability description is served.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	})
}
