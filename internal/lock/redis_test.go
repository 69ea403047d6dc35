package lock_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/lock"
)

func newRedisLocker(t *testing.T, wait time.Duration) (*lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewRedis(client, 10*time.Second, wait), mr
}

func TestRedis_ExclusiveUntilReleased(t *testing.T) {
	l, mr := newRedisLocker(t, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "subscription:u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:subscription:u1"))
	assert.Equal(t, 10*time.Second, mr.TTL("lock:subscription:u1"))

	_, err = l.Lock(ctx, "subscription:u1")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	other, err := l.Lock(ctx, "subscription:u2")
	require.NoError(t, err)
	other()

	unlock()
	assert.False(t, mr.Exists("lock:subscription:u1"))

	again, err := l.Lock(ctx, "subscription:u1")
	require.NoError(t, err)
	again()
}

func TestRedis_ReleaseKeepsOtherHoldersKey(t *testing.T) {
	l, mr := newRedisLocker(t, 100*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	// Our TTL ran out and someone else took the lock.
	mr.Set("lock:k", "someone-else")
	unlock()

	got, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedis_ReleaseFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	l, mr := newRedisLocker(t, 100*time.Millisecond)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	mr.Close()
	unlock()

	out := buf.String()
	assert.Contains(t, out, "failed to release lock")
	assert.Contains(t, out, "key=lock:k")
}
