package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/slotbook/internal/credential"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
)

// AdminConfig wires the owner-only endpoints. Nil dependencies leave their
// routes unregistered.
type AdminConfig struct {
	Tokens     TokenProvider
	Authorizer Authorizer

	// Secret, when set, must be presented as a bearer token on /token and
	// /oauth/init. The callback is bound to a state issued by /oauth/init.
	Secret string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// AdminHandler serves the access token and the authorization handshake. It
// is meant for an internal listener and sends no CORS headers.
type AdminHandler struct {
	cfg    AdminConfig
	logger *slog.Logger
	mux    *http.ServeMux
	root   http.Handler

	statesMu sync.Mutex
	states   map[string]time.Time
}

// NewAdminHandler builds the owner-only API.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &AdminHandler{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "admin"),
		mux:    http.NewServeMux(),
		states: map[string]time.Time{},
	}
	if cfg.Tokens != nil {
		h.mux.Handle("GET /token", h.requireSecret(http.HandlerFunc(h.token)))
	}
	if cfg.Authorizer != nil {
		h.mux.Handle("GET /oauth/init", h.requireSecret(http.HandlerFunc(h.oauthInit)))
		h.mux.HandleFunc("GET /oauth/callback", h.oauthCallback)
	}

	h.root = recoverMiddleware(h.logger, metricsMiddleware(cfg.Metrics, h.mux, h.mux))
	return h
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Mux exposes the route table so health endpoints can be mounted.
func (h *AdminHandler) Mux() *http.ServeMux {
	return h.mux
}

func (h *AdminHandler) requireSecret(next http.Handler) http.Handler {
	if h.cfg.Secret == "" {
		return next
	}
	want := []byte(h.cfg.Secret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) token(w http.ResponseWriter, r *http.Request) {
	token, err := h.cfg.Tokens.GetValidAccessToken(r.Context())
	if err != nil {
		var refreshErr *credential.RefreshError
		switch {
		case errors.Is(err, credential.ErrNotAuthorized):
			writeError(w, http.StatusNotFound, "Calendar has not been authorized")
		case errors.As(err, &refreshErr):
			writeError(w, http.StatusUnauthorized, "Failed to refresh access token")
		default:
			h.logger.Error("failed to load credential", logging.Err(err))
			writeError(w, http.StatusInternalServerError, "Failed to load credential")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

func (h *AdminHandler) oauthInit(w http.ResponseWriter, _ *http.Request) {
	state := uuid.NewString()

	h.statesMu.Lock()
	now := time.Now()
	for s, issued := range h.states {
		if now.Sub(issued) > oauthStateTTL {
			delete(h.states, s)
		}
	}
	h.states[state] = now
	h.statesMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"url": h.cfg.Authorizer.AuthURL(state)})
}

func (h *AdminHandler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "Authorization denied: "+e)
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}
	if !h.consumeState(q.Get("state")) {
		writeError(w, http.StatusBadRequest, "Invalid or expired state")
		return
	}

	if err := h.cfg.Authorizer.Complete(r.Context(), code); err != nil {
		h.logger.Error("authorization handshake failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to complete authorization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) consumeState(state string) bool {
	h.statesMu.Lock()
	defer h.statesMu.Unlock()
	issued, ok := h.states[state]
	if !ok {
		return false
	}
	delete(h.states, state)
	return time.Since(issued) <= oauthStateTTL
}
