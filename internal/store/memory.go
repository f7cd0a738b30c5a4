package store

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

const memoryShards = 32

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// MemoryStore is the in-process fallback backend. Keys are spread over
// fixed shards with per-shard locking so concurrent requests do not
// serialize on a single mutex. Expired entries are dropped lazily on
// read and swept by a janitor.
type MemoryStore struct {
	shards [memoryShards]*shard
	done   chan struct{}
	once   sync.Once
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{done: make(chan struct{})}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]entry)}
	}
	go m.janitor()
	return m
}

func (m *MemoryStore) shard(key string) *shard {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return m.shards[h%memoryShards]
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s := m.shard(key)
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: deadline(ttl)}
	s.mu.Unlock()
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !e.expired(time.Now()) {
		return false, nil
	}
	s.entries[key] = entry{value: value, expiresAt: deadline(ttl)}
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) (int64, error) {
	var deleted int64
	now := time.Now()
	for _, key := range keys {
		s := m.shard(key)
		s.mu.Lock()
		if e, ok := s.entries[key]; ok {
			if !e.expired(now) {
				deleted++
			}
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
	return deleted, nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	now := time.Now()
	var keys []string
	for _, s := range m.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if e.expired(now) {
				delete(s.entries, key)
				continue
			}
			if ok, _ := path.Match(pattern, key); ok {
				keys = append(keys, key)
			}
		}
		s.mu.Unlock()
	}
	return keys, nil
}

func (m *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		s.entries[key] = entry{value: "1", expiresAt: deadline(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

// Shared is always false: entries are visible only within this process.
func (m *MemoryStore) Shared() bool { return false }

func (m *MemoryStore) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MemoryStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			for _, s := range m.shards {
				s.mu.Lock()
				for key, e := range s.entries {
					if e.expired(now) {
						delete(s.entries, key)
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

func deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
