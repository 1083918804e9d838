package httpout

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wasmgate/wasmgate/internal/apperr"
)

// forbiddenHeaders are stripped from every response before it reaches the
// guest, per spec.md §4.6.2 and testable property 5.
var forbiddenHeaders = map[string]bool{
	"connection":          true,
	"host":                true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"keep-alive":          true,
	"proxy-connection":    true,
	"http2-settings":      true,
}

// RequestOptions carries caller-supplied per-request knobs.
type RequestOptions struct {
	// Timeout, when non-zero, bounds the request; expiry maps to
	// ConnectionTimeout (spec.md §5's cancellation section).
	Timeout time.Duration
}

// Sender forwards outbound requests to a real HTTP client after
// sanitization, consulting cache when the request carries Cache-Control.
type Sender struct {
	base *http.Client
}

// NewSender returns a Sender using a default client.
func NewSender() *Sender {
	return &Sender{base: &http.Client{}}
}

// Send implements spec.md §4.6.1's triggering rule (cache engaged only
// when Cache-Control is present) composed with §4.6.2's sanitization and
// error mapping.
func (s *Sender) Send(ctx context.Context, req *http.Request, opts RequestOptions, cache *Cache) (*http.Response, error) {
	dedupeHostHeader(req)

	client := s.base
	if certHeader := req.Header.Get("Client-Cert"); certHeader != "" {
		req.Header.Del("Client-Cert")
		cert, err := clientCertFromBase64(certHeader)
		if err != nil {
			return nil, apperr.BadRequest("invalid_client_cert", err.Error())
		}
		client = &http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		}}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	var ctrl control
	var cacheKey string
	cacheControlHeader := req.Header.Get("Cache-Control")
	if cacheControlHeader != "" {
		parsed, err := parseCacheControl(cacheControlHeader)
		if err != nil {
			return nil, apperr.BadRequest("invalid_cache_control", err.Error())
		}
		ctrl = parsed

		if ctrl.shouldRead() || ctrl.shouldWrite() {
			etag, err := validateETag(req.Header.Values("If-None-Match"))
			if err != nil {
				return nil, apperr.BadRequest("invalid_if_none_match", err.Error())
			}
			cacheKey = etag
		}

		if ctrl.shouldRead() && cache != nil {
			if cr, found, err := cache.Get(ctx, cacheKey); err == nil && found {
				return cachedResponseToHTTP(cr, cacheKey), nil
			}
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, mapSendError(err)
	}
	scrubForbiddenHeaders(resp.Header)

	if cacheControlHeader != "" && ctrl.shouldWrite() && cache != nil {
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr == nil {
			resp.Header.Set("ETag", cacheKey)
			_ = cache.Put(ctx, cacheKey, resp.StatusCode, resp.Header, body, ctrl.ttl())
			resp.Body = io.NopCloser(bytes.NewReader(body))
		} else {
			resp.Body = io.NopCloser(bytes.NewReader(nil))
		}
	}

	return resp, nil
}

func cachedResponseToHTTP(cr *CachedResponse, etag string) *http.Response {
	header := make(http.Header, len(cr.Headers)+1)
	for _, kv := range cr.Headers {
		header.Add(kv[0], kv[1])
	}
	header.Set("ETag", etag)
	return &http.Response{
		StatusCode: int(cr.Status),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(cr.Body)),
	}
}

// dedupeHostHeader keeps only the last Host header value, matching
// default_impl.rs's multiple_host_headers behavior. The value is also
// copied to req.Host, which is the host the Go client actually sends.
func dedupeHostHeader(req *http.Request) {
	if hosts := req.Header.Values("Host"); len(hosts) > 1 {
		last := hosts[len(hosts)-1]
		req.Header.Set("Host", last)
		req.Host = last
	}
}

func clientCertFromBase64(encoded string) (tls.Certificate, error) {
	pemBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decoding Client-Cert: %w", err)
	}
	cert, err := tls.X509KeyPair(pemBytes, pemBytes)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parsing Client-Cert as PEM identity: %w", err)
	}
	return cert, nil
}

func scrubForbiddenHeaders(h http.Header) {
	for name := range h {
		if forbiddenHeaders[strings.ToLower(name)] {
			h.Del(name)
		}
	}
}

// mapSendError maps a client transport error to the typed taxonomy, per
// spec.md §4.6.2: timeout → ConnectionTimeout, connect failure →
// ConnectionRefused, malformed URI → HttpRequestUriInvalid, else →
// InternalError.
func mapSendError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.BadGateway("connection_timeout", "connection timed out")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Op == "parse" {
			return apperr.BadRequest("http_request_uri_invalid", urlErr.Error())
		}
		if strings.Contains(urlErr.Err.Error(), "connection refused") {
			return apperr.BadGateway("connection_refused", "connection refused")
		}
	}
	return apperr.ServerError("internal_error", err.Error())
}
