package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the Redis-backed KV backend, one shared client cloned by
// reference into every per-request store (spec.md §3's backend connection
// lifecycle).
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend dials addr lazily (go-redis connects on first command).
func NewRedisBackend(addr string) *RedisBackend {
	return &RedisBackend{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Open implements Backend. Buckets are namespaced by key prefix since
// Redis itself has no notion of named namespaces.
func (b *RedisBackend) Open(ctx context.Context, name string) (Bucket, error) {
	return &redisBucket{client: b.client, namespace: name}, nil
}

// Close releases the underlying connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type redisBucket struct {
	client    *redis.Client
	namespace string
}

func (b *redisBucket) key(k string) string {
	return b.namespace + ":" + k
}

func (b *redisBucket) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *redisBucket) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.key(key), value, ttl).Err()
}

func (b *redisBucket) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}

func (b *redisBucket) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(key)).Result()
	return n > 0, err
}

func (b *redisBucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := b.key(prefix) + "*"
	var keys []string
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.namespace+":"))
	}
	return keys, iter.Err()
}
