package popup

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	at      time.Time
	period  time.Duration
	fn      func()
	ch      chan time.Time
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) add(d, period time.Duration, fn func()) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &fakeWaiter{at: c.now.Add(d), period: period, fn: fn, ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, w)
	return w
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	return fakeTicker{c: c, w: c.add(d, d, nil)}
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	return fakeTimer{c: c, w: c.add(d, 0, nil)}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	return fakeTimer{c: c, w: c.add(d, 0, f)}
}

// Advance moves time forward and fires everything that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var fns []func()
	for _, w := range c.waiters {
		if w.stopped || w.at.After(c.now) {
			continue
		}
		if w.period > 0 {
			for !w.at.After(c.now) {
				w.at = w.at.Add(w.period)
			}
		} else {
			w.stopped = true
		}
		if w.fn != nil {
			fns = append(fns, w.fn)
			continue
		}
		select {
		case w.ch <- c.now:
		default:
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Active counts timers and tickers that have neither fired nor been stopped.
func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

// BlockUntil waits until n timers are active.
func (c *fakeClock) BlockUntil(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Active() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d active timers, have %d", n, c.Active())
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeClock) stop(w *fakeWaiter) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := !w.stopped
	w.stopped = true
	return was
}

type fakeTicker struct {
	c *fakeClock
	w *fakeWaiter
}

func (t fakeTicker) C() <-chan time.Time { return t.w.ch }
func (t fakeTicker) Stop()               { t.c.stop(t.w) }

type fakeTimer struct {
	c *fakeClock
	w *fakeWaiter
}

func (t fakeTimer) C() <-chan time.Time { return t.w.ch }
func (t fakeTimer) Stop() bool          { return t.c.stop(t.w) }
