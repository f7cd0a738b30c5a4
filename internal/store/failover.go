package store

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

const defaultProbeInterval = 30 * time.Second

// Failover is the single place where degradation policy lives. It
// prefers the shared redis backend and falls over to the in-process
// store when redis is unconfigured or unreachable. Each state change is
// logged once; while degraded it probes redis on an interval and moves
// back when the backend answers again.
//
// With only the local store, cross-instance guarantees (global lock,
// global blacklist, global rate windows) reduce to per-instance. That
// relaxation is deliberate: availability over perfect consistency.
type Failover struct {
	redis *RedisStore
	local *MemoryStore

	degraded   int32
	downAt     int64
	probeEvery time.Duration
}

func NewFailover(redis *RedisStore, local *MemoryStore) *Failover {
	f := &Failover{redis: redis, local: local, probeEvery: defaultProbeInterval}
	if redis == nil {
		log.Printf("level=warn msg=\"shared store not configured, falling back to in-process store\" scope=per-instance")
	}
	return f
}

func (f *Failover) Shared() bool {
	return f.redis != nil && atomic.LoadInt32(&f.degraded) == 0
}

// backend picks the store for the next operation, probing a degraded
// redis backend at most once per probe interval.
func (f *Failover) backend(ctx context.Context) Store {
	if f.redis == nil {
		return f.local
	}
	if atomic.LoadInt32(&f.degraded) == 0 {
		return f.redis
	}
	downAt := atomic.LoadInt64(&f.downAt)
	if time.Since(time.Unix(0, downAt)) < f.probeEvery {
		return f.local
	}
	if err := f.redis.Ping(ctx); err != nil {
		atomic.StoreInt64(&f.downAt, time.Now().UnixNano())
		return f.local
	}
	if atomic.CompareAndSwapInt32(&f.degraded, 1, 0) {
		log.Printf("level=info msg=\"shared store recovered, leaving degraded mode\"")
	}
	return f.redis
}

func (f *Failover) markDown(err error) {
	if atomic.CompareAndSwapInt32(&f.degraded, 0, 1) {
		log.Printf("level=warn msg=\"shared store unreachable, degrading to in-process store\" error=%q", err)
	}
	atomic.StoreInt64(&f.downAt, time.Now().UnixNano())
}

func (f *Failover) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	b := f.backend(ctx)
	err := b.Set(ctx, key, value, ttl)
	if err != nil && b == Store(f.redis) {
		f.markDown(err)
		return f.local.Set(ctx, key, value, ttl)
	}
	return err
}

func (f *Failover) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	b := f.backend(ctx)
	ok, err := b.SetNX(ctx, key, value, ttl)
	if err != nil && b == Store(f.redis) {
		f.markDown(err)
		return f.local.SetNX(ctx, key, value, ttl)
	}
	return ok, err
}

func (f *Failover) Get(ctx context.Context, key string) (string, error) {
	b := f.backend(ctx)
	v, err := b.Get(ctx, key)
	if err != nil && err != ErrNotFound && b == Store(f.redis) {
		f.markDown(err)
		return f.local.Get(ctx, key)
	}
	return v, err
}

func (f *Failover) Delete(ctx context.Context, keys ...string) (int64, error) {
	b := f.backend(ctx)
	n, err := b.Delete(ctx, keys...)
	if err != nil && b == Store(f.redis) {
		f.markDown(err)
		return f.local.Delete(ctx, keys...)
	}
	return n, err
}

func (f *Failover) Exists(ctx context.Context, key string) (bool, error) {
	b := f.backend(ctx)
	ok, err := b.Exists(ctx, key)
	if err != nil && b == Store(f.redis) {
		f.markDown(err)
		return f.local.Exists(ctx, key)
	}
	return ok, err
}

func (f *Failover) Keys(ctx context.Context, pattern string) ([]string, error) {
	b := f.backend(ctx)
	keys, err := b.Keys(ctx, pattern)
	if err != nil && b == Store(f.redis) {
		f.markDown(err)
		return f.local.Keys(ctx, pattern)
	}
	return keys, err
}

func (f *Failover) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	b := f.backend(ctx)
	n, err := b.Incr(ctx, key, ttl)
	if err != nil && b == Store(f.redis) {
		f.markDown(err)
		return f.local.Incr(ctx, key, ttl)
	}
	return n, err
}
