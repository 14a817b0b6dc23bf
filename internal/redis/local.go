package redisclient

import (
	"context"
	"sort"
	"sync"
	"time"
)

// localLocker serializes bookings inside one process. It is used by tests and
// by tooling that runs without Redis.
type localLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) Locker {
	return &localLocker{
		slots: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (l *localLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *localLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []chan struct{}
	defer func() {
		for _, ch := range held {
			<-ch
		}
	}()

	var deadline <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for _, k := range sorted {
		ch := l.slot(k)

		// A free slot always wins over an expired or zero wait.
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
			continue
		default:
		}
		if deadline == nil {
			return ErrLockNotAcquired
		}

		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-deadline:
			return ErrLockNotAcquired
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fn(ctx)
}
