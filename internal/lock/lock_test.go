package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/backend/internal/lock"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "user-1")
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx2, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := lock.NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}
