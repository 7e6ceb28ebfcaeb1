package credential

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
)

// Scopes returns the OAuth scopes the engine needs. The Gmail send scope is
// only requested when notifications are delivered through Gmail.
func Scopes(withGmail bool) []string {
	scopes := []string{
		calendar.CalendarScope,
		calendar.CalendarEventsScope,
	}
	if withGmail {
		scopes = append(scopes, gmail.GmailSendScope)
	}
	return scopes
}

// OAuthConfig builds the Google OAuth client configuration.
func OAuthConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
	}
}

// OAuthRefresher returns a RefreshFunc backed by the provider's token
// endpoint. httpClient may be nil.
func OAuthRefresher(config *oauth2.Config, httpClient *http.Client) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (*Credential, error) {
		if refreshToken == "" {
			return nil, &RefreshError{Err: errors.New("no refresh token available")}
		}

		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}

		// An expiry in the past forces the token source to hit the endpoint.
		token, err := config.TokenSource(ctx, &oauth2.Token{
			RefreshToken: refreshToken,
			Expiry:       time.Unix(1, 0),
		}).Token()
		if err != nil {
			return nil, &RefreshError{Err: err}
		}

		return FromToken(token), nil
	}
}
