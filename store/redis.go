package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces collection keys in a shared Redis database.
const DefaultRedisPrefix = "advoc:collection:"

// RedisStore stores every collection as one Redis string holding the JSON
// array. SET replaces the value atomically, so readers see whole writes only.
type RedisStore struct {
	client *redis.Client
	prefix string
	opts   options
}

// NewRedisStore connects to addr and verifies the connection with PING.
func NewRedisStore(ctx context.Context, addr, prefix string, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, prefix, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, prefix string, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, opts: buildOptions(opts)}
}

func (s *RedisStore) Open(name string) (Collection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return newCollection(name, &redisDoc{client: s.client, key: s.prefix + name}, s.opts), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisDoc struct {
	client *redis.Client
	key    string
}

func (d *redisDoc) read(ctx context.Context) ([]byte, error) {
	data, err := d.client.Get(ctx, d.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

func (d *redisDoc) replace(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.client.Set(ctx, d.key, data, 0).Err()
}
