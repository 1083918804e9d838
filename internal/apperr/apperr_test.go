package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindBadRequest.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusBadGateway, KindBadGateway.Status())
	assert.Equal(t, http.StatusInternalServerError, KindServerError.Status())
}

func TestWrapPreservesKindAndChainsContext(t *testing.T) {
	base := NotFound("bucket_missing", "no such bucket")
	wrapped := Wrap("opening bucket", base)

	var ae *Error
	assert.ErrorAs(t, wrapped, &ae)
	assert.Equal(t, KindNotFound, ae.Kind)
	assert.Equal(t, "bucket_missing", ae.Code)
	assert.Equal(t, "opening bucket: no such bucket", ae.Description)
}

func TestWrapOnPlainErrorUsesStandardWrapping(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap("doing thing", base)
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, "doing thing: boom", wrapped.Error())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap("context", nil))
}

func TestChainJoinsTopMostFirst(t *testing.T) {
	err := errors.New("inner failure")
	assert.Equal(t, "outer: middle: inner failure", Chain(err, "outer", "middle"))
}
