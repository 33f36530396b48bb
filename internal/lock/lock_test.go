package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zipsales/server/config"
)

func TestNew(t *testing.T) {
	l, err := New(config.SyncConfig{Lock: "local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, l)

	l, err = New(config.SyncConfig{Lock: "none"}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, l)

	_, err = New(config.SyncConfig{Lock: "zookeeper"}, nil)
	assert.Error(t, err)
}

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "90210")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, l.size(), "entries should be dropped once released")
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "90210")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "10001")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "90210")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "90210")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, l.size())
}

func newRedisLocker(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisWithClient(client, time.Minute, nil), mr
}

func TestRedis_LockAndRelease(t *testing.T) {
	r, mr := newRedisLocker(t)

	unlock, err := r.Lock(context.Background(), "90210")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"90210"))

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err = r.Lock(ctx, "90210")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists(keyPrefix+"90210"))

	unlock2, err := r.Lock(context.Background(), "90210")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ReleaseKeepsForeignLease(t *testing.T) {
	r, mr := newRedisLocker(t)

	unlock, err := r.Lock(context.Background(), "90210")
	require.NoError(t, err)

	// Lease expired and another instance took over
	require.NoError(t, mr.Set(keyPrefix+"90210", "someone-else"))
	unlock()

	got, err := mr.Get(keyPrefix + "90210")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
