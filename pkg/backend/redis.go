package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Codec translates values to and from the bytes stored in Redis.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// JSONCodec is a Codec that stores values as JSON. It handles any V the
// encoding/json package can round-trip.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Marshal(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}

// RedisCache is a remote Cache backed by a Redis server, for sharing cached
// entries across processes. Expiry is delegated to Redis itself via key
// TTLs. Network or decoding failures are folded into found=false, so a
// flaky Redis degrades into cache misses rather than errors.
type RedisCache[V any] struct {
	client  redis.UniversalClient
	codec   Codec[V]
	prefix  string
	timeout time.Duration
}

var _ Cache[string, string] = (*RedisCache[string])(nil)

// NewRedisCache wraps client as a Cache keyed by string, namespacing every
// key with prefix. Each operation runs under a 1-second deadline.
func NewRedisCache[V any](client redis.UniversalClient, prefix string, codec Codec[V]) *RedisCache[V] {
	return &RedisCache[V]{
		client:  client,
		codec:   codec,
		prefix:  prefix,
		timeout: time.Second,
	}
}

func (r *RedisCache[V]) key(key string) string {
	return r.prefix + key
}

func (r *RedisCache[V]) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

// Get retrieves and decodes the entry stored for key, if any.
func (r *RedisCache[V]) Get(key string) (value V, found bool) {
	ctx, cancel := r.opCtx()
	defer cancel()

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return value, false
	}

	v, err := r.codec.Unmarshal(data)
	if err != nil {
		return value, false
	}
	return v, true
}

// Set encodes and stores value under key. ttlMs <= 0 stores the key without
// an expiry.
func (r *RedisCache[V]) Set(key string, value V, ttlMs int64) {
	data, err := r.codec.Marshal(value)
	if err != nil {
		return
	}

	var ttl time.Duration
	if ttlMs > 0 {
		ttl = time.Duration(ttlMs) * time.Millisecond
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	_ = r.client.Set(ctx, r.key(key), data, ttl).Err()
}

// Clear removes key, reporting whether it was present.
func (r *RedisCache[V]) Clear(key string) bool {
	ctx, cancel := r.opCtx()
	defer cancel()

	n, err := r.client.Del(ctx, r.key(key)).Result()
	return err == nil && n > 0
}
