package httpserver

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURIPrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/path?q=1", nil)
	r.Header.Set("Forwarded", `host=api.example;proto=https`)
	r.Host = "internal:8080"

	u, err := normalizeURI(r)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "api.example", u.Host)
}

func TestNormalizeURIFallsBackToHostHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/path", nil)
	r.Host = "x"

	u, err := normalizeURI(r)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "x", u.Host)
}

func TestNormalizeURIRejectsMissingHost(t *testing.T) {
	r := httptest.NewRequest("GET", "/path", nil)
	r.Host = ""

	_, err := normalizeURI(r)
	assert.Error(t, err)
}

func TestParseForwardedRequiresBothFields(t *testing.T) {
	_, _, ok := parseForwarded(`host=api.example`)
	assert.False(t, ok)

	host, proto, ok := parseForwarded(`host=api.example;proto=https`)
	require.True(t, ok)
	assert.Equal(t, "api.example", host)
	assert.Equal(t, "https", proto)
}
