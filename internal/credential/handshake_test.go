package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newTokenServer returns a fake token endpoint that answers with body.
func newTokenServer(t *testing.T, status int, body string, seen *url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if seen != nil {
			*seen = r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "https://example.com/oauth/callback",
		Scopes:       Scopes(false),
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestHandshake_AuthURL(t *testing.T) {
	h := NewHandshake(testConfig("https://unused"), newMemStore(), nil)

	u, err := url.Parse(h.AuthURL("xyz"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "xyz", q.Get("state"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/calendar")
}

func TestHandshake_Complete(t *testing.T) {
	var form url.Values
	srv := newTokenServer(t, http.StatusOK,
		`{"access_token":"at-new","refresh_token":"rt-new","token_type":"Bearer","expires_in":3600}`, &form)

	store := newMemStore()
	h := NewHandshake(testConfig(srv.URL), store, nil)

	require.NoError(t, h.Complete(context.Background(), "the-code"))
	assert.Equal(t, "the-code", form.Get("code"))

	cred := store.creds[DefaultID]
	require.NotNil(t, cred)
	assert.Equal(t, "at-new", cred.AccessToken)
	assert.Equal(t, "rt-new", cred.RefreshToken)
	assert.True(t, cred.ExpiresAt.After(time.Now()))
}

func TestHandshake_CompleteKeepsRefreshToken(t *testing.T) {
	srv := newTokenServer(t, http.StatusOK,
		`{"access_token":"at-new","token_type":"Bearer","expires_in":3600}`, nil)

	store := newMemStore()
	store.creds[DefaultID] = &Credential{AccessToken: "old", RefreshToken: "rt-old"}
	h := NewHandshake(testConfig(srv.URL), store, nil)

	require.NoError(t, h.Complete(context.Background(), "code"))
	assert.Equal(t, "rt-old", store.creds[DefaultID].RefreshToken)
	assert.Equal(t, "at-new", store.creds[DefaultID].AccessToken)
}

func TestHandshake_CompleteErrors(t *testing.T) {
	srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)
	store := newMemStore()
	h := NewHandshake(testConfig(srv.URL), store, nil)

	assert.Error(t, h.Complete(context.Background(), ""))
	assert.Error(t, h.Complete(context.Background(), "bad"))
	assert.Equal(t, 0, store.saves)
}

func TestOAuthRefresher(t *testing.T) {
	t.Run("exchanges refresh token", func(t *testing.T) {
		var form url.Values
		srv := newTokenServer(t, http.StatusOK,
			`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`, &form)

		cred, err := OAuthRefresher(testConfig(srv.URL), srv.Client())(context.Background(), "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "fresh", cred.AccessToken)
		assert.Equal(t, "refresh_token", form.Get("grant_type"))
		assert.Equal(t, "rt-1", form.Get("refresh_token"))
	})

	t.Run("provider rejection is a refresh error", func(t *testing.T) {
		srv := newTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil)

		_, err := OAuthRefresher(testConfig(srv.URL), nil)(context.Background(), "rt-1")
		var refreshErr *RefreshError
		assert.ErrorAs(t, err, &refreshErr)
	})

	t.Run("missing refresh token", func(t *testing.T) {
		_, err := OAuthRefresher(testConfig("https://unused"), nil)(context.Background(), "")
		var refreshErr *RefreshError
		assert.ErrorAs(t, err, &refreshErr)
	})
}

func TestScopes(t *testing.T) {
	assert.Len(t, Scopes(false), 2)
	assert.Contains(t, Scopes(true), "https://www.googleapis.com/auth/gmail.send")
}
