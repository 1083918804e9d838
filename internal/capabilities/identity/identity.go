// Package identity implements the identity capability: OAuth2
// client-credentials token exchange with a single-slot, double-checked
// process cache, per spec.md §4.6.5.
//
// Grounded on original_source/crates/wasi-identity/src/host/default_impl.rs's
// TokenManager: a cached (token, expires_at) pair guarded by a mutex,
// re-checked after acquiring the lock because a concurrent caller may
// already have refreshed.
package identity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AccessToken is the capability's result type, per spec.md §3:
// "get_token(scopes) -> AccessToken{token, expires_in}".
type AccessToken struct {
	Token     string
	ExpiresIn time.Duration
}

// Identity is the identity capability object.
type Identity interface {
	GetToken(ctx context.Context, scopes []string) (AccessToken, error)
}

// Backend resolves a named identity to an Identity object. The default
// oauth2 backend ignores the name and always returns the one configured
// client-credentials identity.
type Backend interface {
	GetIdentity(ctx context.Context, name string) (Identity, error)
}

type cachedToken struct {
	token     AccessToken
	expiresAt time.Time
}

// TokenManager is the oauth2 client-credentials Identity/Backend,
// single-slot cached per spec.md §4.6.5.
type TokenManager struct {
	config *clientcredentials.Config

	mu    sync.Mutex
	cache cachedToken
}

// NewTokenManager returns a TokenManager configured from spec.md §6's
// IDENTITY_CLIENT_ID/_SECRET/_TOKEN_URL.
func NewTokenManager(clientID, clientSecret, tokenURL string) *TokenManager {
	return &TokenManager{config: &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}}
}

// GetIdentity implements Backend; name is ignored, matching the original's
// single-identity default implementation.
func (m *TokenManager) GetIdentity(ctx context.Context, name string) (Identity, error) {
	return m, nil
}

// GetToken implements Identity. On a cache hit it never contacts the
// OAuth2 endpoint; on a miss it exchanges client credentials and replaces
// the cache under a mutex, re-checking after acquiring the lock to avoid
// a duplicate refresh (spec.md §4.6.5, §9's "double-checked refresh").
func (m *TokenManager) GetToken(ctx context.Context, scopes []string) (AccessToken, error) {
	m.mu.Lock()
	if m.cache.expiresAt.After(time.Now()) {
		cached := m.cache.token
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache.expiresAt.After(time.Now()) {
		return m.cache.token, nil
	}

	cfg := *m.config
	cfg.Scopes = scopes
	tok, err := cfg.Token(ctx)
	if err != nil {
		return AccessToken{}, err
	}
	fresh := tokenFrom(tok)
	m.cache = cachedToken{token: fresh, expiresAt: time.Now().Add(fresh.ExpiresIn)}
	return fresh, nil
}

func tokenFrom(tok *oauth2.Token) AccessToken {
	expiresIn := time.Hour
	if !tok.Expiry.IsZero() {
		if d := time.Until(tok.Expiry); d > 0 {
			expiresIn = d
		}
	}
	return AccessToken{Token: tok.AccessToken, ExpiresIn: expiresIn}
}
