// Package httpout implements the outbound HTTP capability: sending a
// request to a real backend after sanitization, and the ETag-keyed
// response cache layered in front of it.
//
// Grounded on original_source/crates/wasi-http/src/guest/cache.rs (the
// directive parser, CacheOptions, serialized record, and this file's test
// names) and .../host/default_impl.rs (forbidden headers, Client-Cert,
// Host dedup, error mapping — see sender.go).
package httpout

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultCacheBucket is the KV bucket name the cache uses when
// CacheOptions.BucketName is unset, per spec.md §4.6.1.
const DefaultCacheBucket = "default-cache"

// CacheOptions configures one Cache.
type CacheOptions struct {
	BucketName string
}

func (o CacheOptions) bucketName() string {
	if o.BucketName == "" {
		return DefaultCacheBucket
	}
	return o.BucketName
}

// control is the parsed Cache-Control directive state.
type control struct {
	noStore bool
	noCache bool
	maxAge  *int
}

// parseCacheControl splits header on commas, trims, lowercases, and
// recognizes no-store/no-cache/max-age=N; unrecognized tokens are
// silently ignored. An empty header disables both cache read and write.
// Rejects the documented conflicting combinations before any network
// I/O, per spec.md §4.6.1's directive table.
func parseCacheControl(header string) (control, error) {
	if strings.TrimSpace(header) == "" {
		return control{noStore: true}, nil
	}
	var c control
	for _, tok := range strings.Split(header, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		switch {
		case tok == "":
			continue
		case tok == "no-store":
			c.noStore = true
		case tok == "no-cache":
			c.noCache = true
		case strings.HasPrefix(tok, "max-age="):
			n, err := strconv.Atoi(strings.TrimPrefix(tok, "max-age="))
			if err != nil || n < 0 {
				return control{}, fmt.Errorf("invalid max-age directive %q", tok)
			}
			c.maxAge = &n
		}
	}
	if c.noStore && (c.noCache || (c.maxAge != nil && *c.maxAge > 0)) {
		return control{}, fmt.Errorf("no-store cannot combine with no-cache or max-age>0")
	}
	return c, nil
}

func (c control) engaged() bool   { return !c.noStore }
func (c control) shouldRead() bool  { return c.engaged() && !c.noCache }
func (c control) shouldWrite() bool { return c.engaged() }

func (c control) ttl() time.Duration {
	if c.maxAge == nil {
		return 0
	}
	return time.Duration(*c.maxAge) * time.Second
}

// validateETag enforces spec.md §4.6.1: If-None-Match must be present,
// non-empty, single-valued, and not weak (W/...).
func validateETag(values []string) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("If-None-Match is required when caching is requested")
	}
	if len(values) > 1 {
		return "", fmt.Errorf("If-None-Match must be single-valued")
	}
	v := values[0]
	if v == "" {
		return "", fmt.Errorf("If-None-Match must not be empty")
	}
	if strings.HasPrefix(v, "W/") {
		return "", fmt.Errorf("If-None-Match must not be a weak validator")
	}
	return v, nil
}

// CachedResponse is the flat serialized form of spec.md §4.6.1: status,
// an ordered sequence of header pairs, and the raw body.
type CachedResponse struct {
	Status  uint16
	Headers [][2]string
	Body    []byte
}

func encodeCachedResponse(status int, header http.Header, body []byte) ([]byte, error) {
	cr := CachedResponse{Status: uint16(status), Body: body}
	for name, values := range header {
		for _, v := range values {
			if !utf8.ValidString(v) {
				// Non-UTF-8 header values are preserved as empty strings
				// — the acknowledged lossy choice spec.md §9 calls out
				// as an open question.
				v = ""
			}
			cr.Headers = append(cr.Headers, [2]string{name, v})
		}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCachedResponse(data []byte) (*CachedResponse, error) {
	var cr CachedResponse
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

// Bucket is the subset of the KV capability's Bucket object the cache
// needs. Satisfied structurally by kv.Bucket, so this package need not
// import internal/capabilities/kv.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is the ETag-keyed outbound response cache, backed by the KV
// bucket named by Options (spec.md's concurrency model: "the outbound
// cache is shared through the KV bucket").
type Cache struct {
	Options CacheOptions
	open    func(ctx context.Context, bucketName string) (Bucket, error)
}

// NewCache returns a Cache that opens its backing bucket via open.
func NewCache(open func(ctx context.Context, bucketName string) (Bucket, error), opts CacheOptions) *Cache {
	return &Cache{Options: opts, open: open}
}

// Get performs the read path: a hit returns the stored response; a miss,
// or any decode error, is reported as (nil, false, nil) — "any decode
// error is surfaced as a recoverable cache miss."
func (c *Cache) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	bucket, err := c.open(ctx, c.Options.bucketName())
	if err != nil {
		return nil, false, err
	}
	raw, found, err := bucket.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	cr, err := decodeCachedResponse(raw)
	if err != nil {
		return nil, false, nil
	}
	return cr, true, nil
}

// Put performs the write path: serialize (status, headers, body) and
// store it under key with the given TTL.
func (c *Cache) Put(ctx context.Context, key string, status int, header http.Header, body []byte, ttl time.Duration) error {
	bucket, err := c.open(ctx, c.Options.bucketName())
	if err != nil {
		return err
	}
	raw, err := encodeCachedResponse(status, header, body)
	if err != nil {
		return err
	}
	return bucket.Set(ctx, key, raw, ttl)
}
