package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
)

// RefreshFunc exchanges a refresh token for a fresh credential. The returned
// RefreshToken may be empty when the provider does not rotate it.
type RefreshFunc func(ctx context.Context, refreshToken string) (*Credential, error)

// Session hands out valid access tokens for one stored credential.
type Session struct {
	store   Store
	refresh RefreshFunc
	id      string
	now     func() time.Time
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithID overrides the credential identity (default DefaultID).
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// NewSession creates a session over store that refreshes through refresh.
func NewSession(store Store, refresh RefreshFunc, opts ...Option) *Session {
	s := &Session{
		store:   store,
		refresh: refresh,
		id:      DefaultID,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "credential")
	return s
}

// GetValidAccessToken returns a usable access token, refreshing and persisting
// the credential first if it has expired.
func (s *Session) GetValidAccessToken(ctx context.Context) (string, error) {
	cred, err := s.validCredential(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

func (s *Session) validCredential(ctx context.Context) (*Credential, error) {
	cred, err := s.store.Load(ctx, s.id)
	if err != nil {
		return nil, err
	}

	if !cred.Expired(s.now()) {
		return cred, nil
	}

	s.logger.Debug("access token expired, refreshing", slog.Time("expires_at", cred.ExpiresAt))

	fresh, err := s.refresh(ctx, cred.RefreshToken)
	if err != nil {
		s.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshResultFailure)
		s.logger.Warn("credential refresh failed", logging.Err(err))
		var refreshErr *RefreshError
		if errors.As(err, &refreshErr) {
			return nil, err
		}
		return nil, &RefreshError{Err: err}
	}
	s.metrics.RecordCredentialRefresh(ctx, instrumentation.RefreshResultSuccess)

	updated := &Credential{
		AccessToken:  fresh.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    fresh.ExpiresAt,
	}
	if fresh.RefreshToken != "" {
		updated.RefreshToken = fresh.RefreshToken
	}

	if err := s.store.Save(ctx, s.id, updated); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	s.logger.Info("credential refreshed",
		slog.String("access_token", logging.SanitizeToken(updated.AccessToken)),
		slog.Time("expires_at", updated.ExpiresAt))

	return updated, nil
}

// TokenSource adapts the session to oauth2.TokenSource. Each Token call goes
// through GetValidAccessToken semantics using ctx.
func (s *Session) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, session: s}
}

type sessionTokenSource struct {
	ctx     context.Context
	session *Session
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	cred, err := ts.session.validCredential(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.ExpiresAt,
	}, nil
}

// Status describes the stored credential without exposing tokens.
type Status struct {
	Authorized bool      `json:"authorized"`
	Expired    bool      `json:"expired"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// Status reports whether a credential exists and whether it has expired.
// A missing credential is not an error.
func (s *Session) Status(ctx context.Context) (Status, error) {
	cred, err := s.store.Load(ctx, s.id)
	if errors.Is(err, ErrNotAuthorized) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{
		Authorized: true,
		Expired:    cred.Expired(s.now()),
		ExpiresAt:  cred.ExpiresAt,
	}, nil
}
