package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is the shared backend. Every operation is bounded by a
// short timeout so a slow redis node cannot stall the request pipeline.
type RedisStore struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewRedisStore(addr, password string, db int, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})
	return &RedisStore{client: client, opTimeout: opTimeout}
}

func (r *RedisStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	return v, err
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Del(ctx, keys...).Result()
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Keys(ctx, pattern).Result()
}

func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// first increment created the counter, pin its window
	if n == 1 && ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (r *RedisStore) Shared() bool { return true }

func (r *RedisStore) Close() error { return r.client.Close() }
