package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/mcp-oauth/storage"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// exerciseStore runs the same contract checks against any Store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	id := "store-test-" + time.Now().Format("150405.000000000")

	_, err := store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	cred := &Credential{AccessToken: "at", RefreshToken: "rt", ExpiresAt: expiry}
	require.NoError(t, store.Save(ctx, id, cred))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "at", loaded.AccessToken)
	assert.Equal(t, "rt", loaded.RefreshToken)
	assert.True(t, expiry.Equal(loaded.ExpiresAt))

	cred.AccessToken = "at-2"
	require.NoError(t, store.Save(ctx, id, cred))
	loaded, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "at-2", loaded.AccessToken)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credential.json")
	store := NewFileStore(path)
	exerciseStore(t, store)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path).Load(context.Background(), DefaultID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAuthorized)
}

func TestTokenStoreAdapter(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	exerciseStore(t, NewTokenStoreAdapter(store))
}

// failingTokenStore answers GetToken with fixed results. Other methods are
// not used by the adapter's Load.
type failingTokenStore struct {
	storage.TokenStore
	token *oauth2.Token
	err   error
}

func (f failingTokenStore) GetToken(context.Context, string) (*oauth2.Token, error) {
	return f.token, f.err
}

func TestTokenStoreAdapter_LoadErrors(t *testing.T) {
	backendDown := errors.New("dial tcp 10.0.0.5:6379: connection refused")

	tests := []struct {
		name         string
		store        failingTokenStore
		unauthorized bool
		wantErr      error
	}{
		{name: "not found", store: failingTokenStore{err: fmt.Errorf("%w: main_calendar", storage.ErrTokenNotFound)}, unauthorized: true},
		{name: "expired without refresh token", store: failingTokenStore{err: storage.ErrTokenExpired}, unauthorized: true},
		{name: "nil token", store: failingTokenStore{}, unauthorized: true},
		{name: "backend failure", store: failingTokenStore{err: backendDown}, wantErr: backendDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTokenStoreAdapter(tt.store).Load(context.Background(), DefaultID)
			require.Error(t, err)
			if tt.unauthorized {
				assert.ErrorIs(t, err, ErrNotAuthorized)
				return
			}
			assert.NotErrorIs(t, err, ErrNotAuthorized)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SLOTBOOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SLOTBOOK_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	exerciseStore(t, NewRedisStore(client, "slotbook-test:"))
}

func TestRedisStore_Key(t *testing.T) {
	store := NewRedisStore(nil, "")
	assert.Equal(t, "slotbook:credential:main_calendar", store.key(DefaultID))
}
