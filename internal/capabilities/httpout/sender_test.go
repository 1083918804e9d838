package httpout

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmgate/wasmgate/internal/apperr"
)

func TestMultipleHostHeadersKeepsLast(t *testing.T) {
	var gotHost string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL, nil)
	require.NoError(t, err)
	req.Header.Add("Host", "first")
	req.Header.Add("Host", "second")

	s := NewSender()
	resp, err := s.Send(req.Context(), req, RequestOptions{}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "second", gotHost)
}

func TestPostWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))
	defer srv.Close()

	req, err := http.NewRequest("POST", srv.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	s := NewSender()
	resp, err := s.Send(req.Context(), req, RequestOptions{}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestPermittedHeadersScrubsForbiddenSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Custom", "ok")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest("GET", srv.URL, nil)
	require.NoError(t, err)

	s := NewSender()
	resp, err := s.Send(req.Context(), req, RequestOptions{}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Connection"))
	assert.Equal(t, "ok", resp.Header.Get("X-Custom"))
}

func TestInvalidURIMapsToBadRequest(t *testing.T) {
	_, err := http.NewRequest("GET", "http://[::1", nil)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, mapSendError(err), &appErr)
	assert.Equal(t, apperr.KindBadRequest, appErr.Kind)
}

func TestConnectionRefusedMapsToBadGateway(t *testing.T) {
	req, err := http.NewRequest("GET", "http://127.0.0.1:1", nil)
	require.NoError(t, err)

	s := NewSender()
	_, sendErr := s.Send(req.Context(), req, RequestOptions{}, nil)
	require.Error(t, sendErr)

	var appErr *apperr.Error
	require.ErrorAs(t, sendErr, &appErr)
	assert.Equal(t, apperr.KindBadGateway, appErr.Kind)
}
