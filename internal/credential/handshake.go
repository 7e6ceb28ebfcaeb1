package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/teemow/slotbook/internal/logging"
)

// Handshake performs the one-time authorization that issues the credential.
type Handshake struct {
	config *oauth2.Config
	store  Store
	id     string
	logger *slog.Logger
}

// NewHandshake creates a handshake that stores the credential under DefaultID.
func NewHandshake(config *oauth2.Config, store Store, logger *slog.Logger) *Handshake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handshake{
		config: config,
		store:  store,
		id:     DefaultID,
		logger: logging.WithComponent(logger, "credential"),
	}
}

// AuthURL returns the consent URL. Offline access with forced consent makes
// the provider issue a refresh token every time.
func (h *Handshake) AuthURL(state string) string {
	return h.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Complete exchanges an authorization code and upserts the credential.
// An existing refresh token is kept if the provider does not return one.
func (h *Handshake) Complete(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("authorization code is required")
	}

	token, err := h.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}

	cred := FromToken(token)
	if cred.RefreshToken == "" {
		existing, err := h.store.Load(ctx, h.id)
		if err == nil {
			cred.RefreshToken = existing.RefreshToken
		} else if !errors.Is(err, ErrNotAuthorized) {
			return fmt.Errorf("failed to load existing credential: %w", err)
		}
	}

	if err := h.store.Save(ctx, h.id, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	h.logger.Info("calendar authorized",
		slog.String("access_token", logging.SanitizeToken(cred.AccessToken)),
		slog.Bool("has_refresh_token", cred.RefreshToken != ""))
	return nil
}
