package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays held past the wait deadline.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process pointing at the same Redis.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
}

// NewRedis returns a Redis locker. ttl bounds how long a crashed holder blocks
// others; wait bounds how long Lock polls before giving up.
func NewRedis(client redis.UniversalClient, ttl, wait time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: "lock:",
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		wait:   wait,
	}
}

func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	k := l.prefix + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// The request context may already be cancelled; release on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{k}, token).Err(); err != nil {
			slog.Warn("failed to release lock, it will expire after its ttl", "key", k, "ttl", l.ttl, "error", err)
		}
	}, nil
}

// Connect parses url and pings the server, retrying a few times.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for range max(attempts, 1) {
		client := redis.NewClient(opts)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, lastErr
}
