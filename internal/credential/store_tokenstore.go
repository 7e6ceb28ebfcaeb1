package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-oauth/storage"
)

// TokenStoreAdapter stores the credential in an mcp-oauth TokenStore.
type TokenStoreAdapter struct {
	store storage.TokenStore
}

// NewTokenStoreAdapter wraps store.
func NewTokenStoreAdapter(store storage.TokenStore) *TokenStoreAdapter {
	return &TokenStoreAdapter{store: store}
}

// Load maps a missing token, or an expired one the store will not hand out,
// to ErrNotAuthorized. Any other store failure is returned wrapped.
func (a *TokenStoreAdapter) Load(ctx context.Context, id string) (*Credential, error) {
	token, err := a.store.GetToken(ctx, id)
	switch {
	case errors.Is(err, storage.ErrTokenNotFound), errors.Is(err, storage.ErrTokenExpired):
		return nil, ErrNotAuthorized
	case err != nil:
		return nil, fmt.Errorf("failed to load credential from token store: %w", err)
	case token == nil:
		return nil, ErrNotAuthorized
	}
	return FromToken(token), nil
}

func (a *TokenStoreAdapter) Save(ctx context.Context, id string, cred *Credential) error {
	if err := a.store.SaveToken(ctx, id, cred.Token()); err != nil {
		return fmt.Errorf("failed to save credential to token store: %w", err)
	}
	return nil
}
