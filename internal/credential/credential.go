package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// DefaultID is the identity string the calendar credential is stored under.
const DefaultID = "main_calendar"

// ErrNotAuthorized is returned when no credential has ever been issued.
var ErrNotAuthorized = errors.New("calendar not authorized")

// Credential is the delegated access credential for the calendar identity.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token can no longer be used at now.
// A credential expiring exactly at now counts as expired.
func (c *Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Token converts the credential to an oauth2 token.
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RefreshToken,
		Expiry:       c.ExpiresAt,
	}
}

// FromToken converts an oauth2 token to a credential.
func FromToken(t *oauth2.Token) *Credential {
	return &Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
}

// RefreshError is returned when the identity provider rejects a refresh.
// The authorization handshake has to be repeated to recover.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("credential refresh rejected: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Store persists credentials by identity.
type Store interface {
	// Load returns ErrNotAuthorized when no credential exists for id.
	Load(ctx context.Context, id string) (*Credential, error)
	Save(ctx context.Context, id string, cred *Credential) error
}
