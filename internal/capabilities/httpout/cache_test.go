package httpout

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatesSerializationDeserialization(t *testing.T) {
	header := http.Header{"Content-Type": []string{"application/json"}}
	encoded, err := encodeCachedResponse(200, header, []byte(`{"ok":true}`))
	require.NoError(t, err)

	decoded, err := decodeCachedResponse(encoded)
	require.NoError(t, err)
	assert.EqualValues(t, 200, decoded.Status)
	assert.Equal(t, []byte(`{"ok":true}`), decoded.Body)
	assert.Contains(t, decoded.Headers, [2]string{"Content-Type", "application/json"})
}

func TestReturnsNoneWhenHeaderMissing(t *testing.T) {
	c, err := parseCacheControl("")
	require.NoError(t, err)
	assert.False(t, c.shouldRead())
	assert.False(t, c.shouldWrite())
}

func TestParsesMaxAgeWithEtag(t *testing.T) {
	c, err := parseCacheControl("max-age=300")
	require.NoError(t, err)
	assert.True(t, c.shouldRead())
	assert.Equal(t, 300*1e9, float64(c.ttl()))

	etag, err := validateETag([]string{"e1"})
	require.NoError(t, err)
	assert.Equal(t, "e1", etag)
}

func TestRequiresETagWhenStoreEnabled(t *testing.T) {
	c, err := parseCacheControl("max-age=60")
	require.NoError(t, err)
	require.True(t, c.shouldWrite())

	_, err = validateETag(nil)
	assert.Error(t, err)
}

func TestRejectsConflictingDirectives(t *testing.T) {
	_, err := parseCacheControl("no-store, max-age=10")
	assert.Error(t, err)

	_, err = parseCacheControl("no-store, no-cache")
	assert.Error(t, err)
}

func TestRejectsWeakEtagValue(t *testing.T) {
	_, err := validateETag([]string{`W/"abc"`})
	assert.Error(t, err)
}

func TestRejectsMultipleEtagValues(t *testing.T) {
	_, err := validateETag([]string{"e1", "e2"})
	assert.Error(t, err)
}

func TestNonUTF8HeaderValueSerializedLossy(t *testing.T) {
	header := http.Header{"X-Bin": []string{string([]byte{0xff, 0xfe})}}
	encoded, err := encodeCachedResponse(200, header, nil)
	require.NoError(t, err)

	decoded, err := decodeCachedResponse(encoded)
	require.NoError(t, err)
	assert.Contains(t, decoded.Headers, [2]string{"X-Bin", ""})
}
