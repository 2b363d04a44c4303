// Package clock abstracts time so that periodic and randomized call activity
// can run against wall-clock time in production and simulated time in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Clock tells time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Sleep waits for d on c. It returns ctx.Err() if ctx is done first, in
// which case the underlying timer is stopped.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	t := c.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// Ticker runs a callback every interval until stopped. The next run is
// scheduled after the callback returns.
type Ticker struct {
	clock    Clock
	interval time.Duration
	f        func()

	mu      sync.Mutex
	timer   Timer
	stopped bool
}

// Every schedules f to run every d on c.
func Every(c Clock, d time.Duration, f func()) *Ticker {
	tk := &Ticker{clock: c, interval: d, f: f}
	tk.mu.Lock()
	tk.timer = c.AfterFunc(d, tk.fire)
	tk.mu.Unlock()
	return tk
}

func (tk *Ticker) fire() {
	tk.mu.Lock()
	if tk.stopped {
		tk.mu.Unlock()
		return
	}
	tk.mu.Unlock()

	tk.f()

	tk.mu.Lock()
	defer tk.mu.Unlock()
	if !tk.stopped {
		tk.timer = tk.clock.AfterFunc(tk.interval, tk.fire)
	}
}

// Stop cancels future runs. A run already in progress is not interrupted.
// Stop is idempotent.
func (tk *Ticker) Stop() bool {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	if tk.stopped {
		return false
	}
	tk.stopped = true
	if tk.timer != nil {
		tk.timer.Stop()
	}
	return true
}
