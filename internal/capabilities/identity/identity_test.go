package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTokenUsesCachedTokenWithinTTL(t *testing.T) {
	m := NewTokenManager("test-client", "test-secret", "https://example.com/token")
	m.cache = cachedToken{
		token:     AccessToken{Token: "cached-token", ExpiresIn: time.Minute},
		expiresAt: time.Now().Add(time.Minute),
	}

	tok, err := m.GetToken(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cached-token", tok.Token)
}

func TestGetIdentityIgnoresName(t *testing.T) {
	m := NewTokenManager("c", "s", "https://example.com/token")
	id, err := m.GetIdentity(context.Background(), "anything")
	require.NoError(t, err)
	assert.Same(t, Identity(m), id)
}
