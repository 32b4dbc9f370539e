package redis

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
)

const scanCount = 500

// Redis is a KVStore on a Redis server. TTLs are native Redis expiries.
type Redis struct {
	client *goredis.Client
}

var (
	_ interfaces.KVStore     = &Redis{}
	_ interfaces.BatchWriter = &Redis{}
)

// New connects to the Redis server at url (redis:// or rediss://) and pings it
func New(ctx context.Context, url string) (*Redis, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse redis url")
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to ping redis", goerr.V("addr", opts.Addr))
	}

	return &Redis{client: client}, nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, goerr.Wrap(interfaces.ErrKeyNotFound, "key not found in redis", goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get key from redis", goerr.V("key", key))
	}
	return value, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration(ttl)).Err(); err != nil {
		return goerr.Wrap(err, "failed to set key in redis", goerr.V("key", key))
	}
	return nil
}

// SetMany writes all entries in one MULTI/EXEC transaction
func (r *Redis) SetMany(ctx context.Context, entries []interfaces.KVEntry, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.Key, e.Value, expiration(ttl))
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to write redis transaction", goerr.V("entries", len(entries)))
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return goerr.Wrap(err, "failed to delete keys from redis", goerr.V("keys", keys))
	}
	return nil
}

func (r *Redis) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to scan redis", goerr.V("prefix", prefix))
	}
	return keys, nil
}

func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close redis client")
	}
	return nil
}
