// Package timeutil provides a testable abstraction over time operations.
//
// Everything in rigcam that waits (readiness polling, retry backoff, render
// ticks, recording playback) goes through a Clock so tests can drive it with
// MockClock instead of sleeping.
package timeutil

import (
	"sort"
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTimer creates a new Timer that will send the current time
	// on its channel after at least duration d.
	NewTimer(d time.Duration) Timer

	// NewTicker returns a new Ticker containing a channel that will
	// send the time with a period specified by the duration argument.
	NewTicker(d time.Duration) Ticker
}

// Timer represents a single event timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Ticker holds a channel that delivers ticks at intervals.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration        { return time.Since(t) }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewTimer creates a new Timer.
func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time        { return t.timer.C }
func (t *realTimer) Stop() bool                 { return t.timer.Stop() }
func (t *realTimer) Reset(d time.Duration) bool { return t.timer.Reset(d) }

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// MockClock is a manually controlled clock for testing. Timers and tickers
// fire only from Advance, in deadline order.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*mockWaiter
}

// NewMockClock creates a new MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// After returns a channel that receives the time after duration d.
func (c *MockClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C()
}

// NewTimer creates a timer that fires once when the clock reaches now+d.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	return c.add(d, 0)
}

// NewTicker creates a ticker firing every d of mock time.
func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	return mockTicker{c.add(d, d)}
}

func (c *MockClock) add(d, period time.Duration) *mockWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &mockWaiter{clock: c, ch: make(chan time.Time, 1), deadline: c.now.Add(d), period: period}
	c.waiters = append(c.waiters, w)
	return w
}

// Advance moves the clock forward by d, firing every timer and ticker whose
// deadline falls within the step. A ticker due several times fires once per
// period, though its buffered channel holds only one undelivered tick.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.now.Add(d)
	for {
		sort.SliceStable(c.waiters, func(i, j int) bool {
			return c.waiters[i].deadline.Before(c.waiters[j].deadline)
		})
		if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
			break
		}
		w := c.waiters[0]
		c.now = w.deadline
		select {
		case w.ch <- c.now:
		default:
		}
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
		} else {
			c.waiters = c.waiters[1:]
		}
	}
	c.now = target
}

// Waiters reports how many timers and tickers are armed.
func (c *MockClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// AwaitWaiters polls in real time until at least n timers or tickers are
// armed, so a test can advance the clock only once the code under test is
// actually waiting. It reports false on timeout.
func (c *MockClock) AwaitWaiters(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for c.Waiters() < n {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

func (c *MockClock) remove(w *mockWaiter) bool {
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// mockWaiter backs both mock timers (period 0) and mock tickers.
type mockWaiter struct {
	clock    *MockClock
	ch       chan time.Time
	deadline time.Time
	period   time.Duration
}

func (w *mockWaiter) C() <-chan time.Time { return w.ch }

// Stop disarms the waiter. For timers it reports whether it was armed.
func (w *mockWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	return w.clock.remove(w)
}

// Reset re-arms a timer to fire d after the current mock time.
func (w *mockWaiter) Reset(d time.Duration) bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()
	active := w.clock.remove(w)
	w.deadline = w.clock.now.Add(d)
	w.clock.waiters = append(w.clock.waiters, w)
	return active
}

type mockTicker struct{ w *mockWaiter }

func (t mockTicker) C() <-chan time.Time { return t.w.ch }
func (t mockTicker) Stop()               { t.w.Stop() }
