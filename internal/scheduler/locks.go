package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// tupleLocks is a keyed mutex set. Entries are created on demand and removed
// once no pipeline references them, so idle tuples cost nothing.
type tupleLocks struct {
	clock clock.Clock

	mu    sync.Mutex
	locks map[string]*tupleLock
}

type tupleLock struct {
	ch   chan struct{} // capacity 1; holding the token = holding the lock
	refs int
}

func newTupleLocks(clk clock.Clock) *tupleLocks {
	return &tupleLocks{
		clock: clk,
		locks: make(map[string]*tupleLock),
	}
}

// acquire takes the lock for key, waiting up to timeout. On success it
// returns a release func and true.
func (t *tupleLocks) acquire(key string, timeout time.Duration) (func(), bool) {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &tupleLock{ch: make(chan struct{}, 1)}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	timer := t.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			t.release(key, l)
		}, true
	case <-timer.C:
		t.release(key, l)
		return nil, false
	}
}

func (t *tupleLocks) release(key string, l *tupleLock) {
	t.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()
}
