package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "session:user:1:abc", "payload", time.Minute))

	v, err := m.Get(ctx, "session:user:1:abc")
	require.NoError(t, err)
	assert.Equal(t, "payload", v)

	n, err := m.Delete(ctx, "session:user:1:abc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.Get(ctx, "session:user:1:abc")
	assert.Equal(t, ErrNotFound, err)
}

func TestMemoryStore_Expiry(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "blacklist:token:x", "1", 30*time.Millisecond))

	ok, err := m.Exists(ctx, "blacklist:token:x")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	ok, err = m.Exists(ctx, "blacklist:token:x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_SetNX_OnlyFirstWins(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "reqlock:fp1", "1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "reqlock:fp1", "1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_SetNX_Concurrent(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	acquired := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.SetNX(ctx, "reqlock:shared", "1", time.Minute)
			require.NoError(t, err)
			acquired <- ok
		}()
	}
	wg.Wait()
	close(acquired)

	wins := 0
	for ok := range acquired {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent acquire may succeed")
}

func TestMemoryStore_SetNX_AfterExpiry(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	ok, _ := m.SetNX(ctx, "reqlock:fp2", "1", 20*time.Millisecond)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	ok, err := m.SetNX(ctx, "reqlock:fp2", "1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock record must be reacquirable")
}

func TestMemoryStore_Incr(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := m.Incr(ctx, "ratelimit:auth:1.2.3.4:100", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}
}

func TestMemoryStore_Incr_Concurrent(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Incr(ctx, "ratelimit:general:u42:0", time.Minute)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := m.Incr(ctx, "ratelimit:general:u42:0", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), n)
}

func TestMemoryStore_Keys(t *testing.T) {
	m := NewMemoryStore()
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("session:user:7:fp%d", i), "{}", time.Minute))
	}
	require.NoError(t, m.Set(ctx, "session:user:8:fp0", "{}", time.Minute))

	keys, err := m.Keys(ctx, "session:user:7:*")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestFailover_WithoutRedisIsLocalOnly(t *testing.T) {
	local := NewMemoryStore()
	defer local.Close()
	f := NewFailover(nil, local)
	ctx := context.Background()

	assert.False(t, f.Shared())

	require.NoError(t, f.Set(ctx, "idempotency:k1", "cached", time.Minute))
	v, err := f.Get(ctx, "idempotency:k1")
	require.NoError(t, err)
	assert.Equal(t, "cached", v)

	ok, err := f.SetNX(ctx, "reqlock:fp", "1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
