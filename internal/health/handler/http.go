package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Serving states reported in Response.Status.
const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)

const checkTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable. kvstore.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker reports whether the policy evaluator is usable. *engine.OPAEvaluator implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Response is the JSON body of GET /healthz.
type Response struct {
	Status string `json:"status"`
}

// Server serves readiness for the credential proxy.
type Server struct {
	pinger        Pinger
	policyChecker PolicyChecker
}

// NewServer returns a health handler. Either dependency may be nil; nil checks are skipped.
func NewServer(pinger Pinger, policyChecker PolicyChecker) *Server {
	return &Server{pinger: pinger, policyChecker: policyChecker}
}

// Check runs the configured checks and returns the serving status.
func (s *Server) Check(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			log.Printf("health: store ping failed: %v", err)
			return StatusNotServing
		}
	}
	if s.policyChecker != nil {
		if err := s.policyChecker.HealthCheck(ctx); err != nil {
			log.Printf("health: policy check failed: %v", err)
			return StatusNotServing
		}
	}
	return StatusServing
}

// ServeHTTP answers 200 when serving and 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	status := s.Check(r.Context())
	code := http.StatusOK
	if status != StatusServing {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method == http.MethodHead {
		return
	}
	_ = json.NewEncoder(w).Encode(Response{Status: status})
}
