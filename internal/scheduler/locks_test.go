package scheduler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestTupleLocksSerializeOneKey(t *testing.T) {
	locks := newTupleLocks(clock.New())

	release, ok := locks.acquire("1/1", time.Second)
	if !ok {
		t.Fatal("first acquire failed")
	}

	// A different key is independent.
	other, ok := locks.acquire("1/2", time.Second)
	if !ok {
		t.Fatal("independent key blocked")
	}
	other()

	// The held key times out for a second caller.
	if _, ok := locks.acquire("1/1", 10*time.Millisecond); ok {
		t.Fatal("second acquire on held key succeeded")
	}

	release()
	release2, ok := locks.acquire("1/1", time.Second)
	if !ok {
		t.Fatal("acquire after release failed")
	}
	release2()
}

func TestTupleLocksEntriesAreReclaimed(t *testing.T) {
	locks := newTupleLocks(clock.New())

	release, _ := locks.acquire("1/1", time.Second)
	release()

	locks.mu.Lock()
	n := len(locks.locks)
	locks.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d lock entries left after release, want 0", n)
	}
}

func TestTupleLocksTimeoutUsesInjectedClock(t *testing.T) {
	clk := clock.NewMock()
	locks := newTupleLocks(clk)

	release, _ := locks.acquire("1/1", time.Minute)
	defer release()

	done := make(chan bool)
	go func() {
		_, ok := locks.acquire("1/1", 30*time.Second)
		done <- ok
	}()

	// Give the goroutine time to park on the timer, then jump past it.
	time.Sleep(20 * time.Millisecond)
	clk.Add(31 * time.Second)

	select {
	case ok := <-done:
		if ok {
			t.Fatal("acquire succeeded, expected timeout")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("acquire never returned after clock advance")
	}
}
