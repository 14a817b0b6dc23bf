package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("booking lock not acquired")
)

const retryInterval = 25 * time.Millisecond

// Locker is used by the appointment service to keep concurrent bookings of
// the same doctor, room or patient on the same day from racing each other.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a locker that holds one Redis key per resource. ttl
// bounds how long a crashed holder can block others; wait bounds how long a
// caller polls for a busy key before giving up.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	token := uuid.NewString()
	var held []string

	defer func() {
		for _, key := range held {
			_ = l.release(context.WithoutCancel(ctx), key, token)
		}
	}()

	deadline := time.Now().Add(l.wait)
	for _, k := range sorted {
		key := "lock:booking:" + k
		if err := l.acquire(ctx, key, token, deadline); err != nil {
			return err
		}
		held = append(held, key)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string, deadline time.Time) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire booking lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}
