package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/slotbook/internal/credential"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusMissing      = "missing"
	healthStatusExpired      = "expired"
	healthStatusError        = "error"
)

const credentialCheckTimeout = 2 * time.Second

// CredentialStatuser reports the stored credential state.
type CredentialStatuser interface {
	Status(ctx context.Context) (credential.Status, error)
}

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// serverContext provides access to dependencies for health checks
	serverContext *ServerContext
	credentials   CredentialStatuser
	// startTime tracks when the server started
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker. sc may be nil in tests.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	if sc != nil && sc.Session() != nil {
		h.credentials = sc.Session()
	}
	// Server starts as ready by default
	h.ready.Store(true)
	return h
}

// WithCredentials overrides where the credential check reads from.
func (h *HealthChecker) WithCredentials(c CredentialStatuser) *HealthChecker {
	h.credentials = c
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) isServerShuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// credentialCheck returns the credential state and whether it should fail
// readiness. A missing or expired credential is reported but does not make
// the server unready: /oauth/init must stay reachable to fix it.
func (h *HealthChecker) credentialCheck(ctx context.Context) (string, *credential.Status, bool) {
	if h.credentials == nil {
		return "", nil, true
	}
	ctx, cancel := context.WithTimeout(ctx, credentialCheckTimeout)
	defer cancel()

	st, err := h.credentials.Status(ctx)
	switch {
	case err != nil:
		return healthStatusError, nil, false
	case !st.Authorized:
		return healthStatusMissing, &st, true
	case st.Expired:
		return healthStatusExpired, &st, true
	default:
		return healthStatusOK, &st, true
	}
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status     string             `json:"status"`
	Uptime     string             `json:"uptime"`
	Credential *credential.Status `json:"credential,omitempty"`
	Queue      string             `json:"queue,omitempty"`
}

// readiness evaluates every check once per request.
type readiness struct {
	checks     map[string]string
	credential *credential.Status
	ok         bool
}

func (h *HealthChecker) evaluate(ctx context.Context) readiness {
	r := readiness{checks: map[string]string{}, ok: true}

	check := func(name string, pass bool, failure string) {
		if pass {
			r.checks[name] = healthStatusOK
			return
		}
		r.checks[name] = failure
		r.ok = false
	}
	check("ready", h.ready.Load(), healthStatusNotReady)
	check("shutdown", !h.isServerShuttingDown(), healthStatusShuttingDown)

	if state, st, ok := h.credentialCheck(ctx); state != "" {
		r.checks["credential"] = state
		r.credential = st
		r.ok = r.ok && ok
	}
	return r
}

func writeHealth(w http.ResponseWriter, ok bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := h.evaluate(r.Context())
		response := HealthResponse{Status: healthStatusOK, Checks: res.checks}
		if !res.ok {
			response.Status = healthStatusNotReady
		}
		writeHealth(w, res.ok, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed
// endpoint. It adds uptime, the credential state and the queue backend.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := h.evaluate(r.Context())
		response := DetailedHealthResponse{
			Status:     healthStatusOK,
			Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
			Credential: res.credential,
		}
		if h.serverContext != nil {
			response.Queue = h.serverContext.QueueKind()
		}
		switch {
		case h.isServerShuttingDown():
			response.Status = healthStatusShuttingDown
		case !res.ok:
			response.Status = healthStatusNotReady
		}
		writeHealth(w, res.ok, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("GET /healthz", h.LivenessHandler())
	mux.Handle("GET /readyz", h.ReadinessHandler())
	mux.Handle("GET /healthz/detailed", h.DetailedHealthHandler())
}
