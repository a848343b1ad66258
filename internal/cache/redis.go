// Package cache provides a Redis-backed key-value store for checkpoints and
// directory grants.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores each value as a plain string key <prefix>:<namespace>:<key>.
type Redis struct {
	client *redis.Client
	prefix string
}

// Connect dials Redis and verifies the connection with PING.
func Connect(ctx context.Context, opts Options) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	return New(client, opts.KeyPrefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Key returns the Redis key used for namespace/key.
func (r *Redis) Key(namespace, key string) string {
	if r.prefix == "" {
		return namespace + ":" + key
	}
	return r.prefix + ":" + namespace + ":" + key
}

// Get returns the stored value, or nil when absent.
func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.Key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", r.Key(namespace, key), err)
	}
	return data, nil
}

// Put replaces a value. Values never expire.
func (r *Redis) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := r.client.Set(ctx, r.Key(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.Key(namespace, key), err)
	}
	return nil
}

// Delete removes a value.
func (r *Redis) Delete(ctx context.Context, namespace, key string) error {
	if err := r.client.Del(ctx, r.Key(namespace, key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.Key(namespace, key), err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
