// Package lock serializes mutations on the same task.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"collabtodo/internal/metrics"
)

// ErrTimeout is returned when a lock could not be acquired in time.
var ErrTimeout = errors.New("lock wait timed out")

// Locker grants exclusive access to a key. The returned unlock func is safe
// to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Local is an in-process keyed mutex. Entries are reference counted and
// dropped once nobody holds or waits for them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

type entry struct {
	sem  chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns a Local that waits at most timeout for a key.
// A zero timeout waits until ctx is done.
func NewLocal(timeout time.Duration) *Local {
	return &Local{entries: make(map[string]*entry), timeout: timeout}
}

// Lock blocks until key is free, ctx is done or the timeout elapses.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	select {
	case e.sem <- struct{}{}:
		metrics.LockWaitDuration.WithLabelValues("local").Observe(time.Since(start).Seconds())
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				l.release(key, e)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, e)
		return nil, waitError("local", key, ctx.Err())
	}
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func waitError(backend, key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.LockTimeouts.WithLabelValues(backend).Inc()
		return fmt.Errorf("%w: %s", ErrTimeout, key)
	}
	return err
}
