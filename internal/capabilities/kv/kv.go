// Package kv implements the KV capability: a named Bucket namespace with
// get/set/delete/exists/keys, backed by an in-memory store or Redis.
//
// Grounded on spec.md §3's Capability objects ("Bucket (KV): named
// namespace with get/set/delete/exists/keys") and on the teacher's
// internal/router driver-registry shape for choosing a backend by name.
package kv

import (
	"context"
	"time"
)

// Bucket is the KV capability object.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Backend opens named buckets.
type Backend interface {
	Open(ctx context.Context, name string) (Bucket, error)
}
