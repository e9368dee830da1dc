// Package clock abstracts wall-clock time so the agent loops can be driven
// deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source used by the agent loops.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a manually advanced Clock. Timers fire only when Advance moves the
// current time past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	waits   []time.Duration
	waiters chan struct{}
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake constructs a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:     start,
		waiters: make(chan struct{}, 64),
	}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a timer that fires when the fake time reaches now+d. Every
// requested duration is recorded and can be read back with Waits.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	ch := make(chan time.Time, 1)
	f.waits = append(f.waits, d)
	if d <= 0 {
		ch <- f.now
	} else {
		f.timers = append(f.timers, &fakeTimer{deadline: f.now.Add(d), ch: ch})
	}
	f.mu.Unlock()

	select {
	case f.waiters <- struct{}{}:
	default:
	}
	return ch
}

// Advance moves the fake time forward by d and fires every timer whose
// deadline has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	sort.SliceStable(f.timers, func(i, j int) bool {
		return f.timers[i].deadline.Before(f.timers[j].deadline)
	})
	remaining := f.timers[:0]
	var due []*fakeTimer
	for _, t := range f.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
	f.mu.Unlock()

	for _, t := range due {
		t.ch <- now
	}
}

// Waits returns every duration passed to After so far.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}

// Pending reports how many timers have not fired yet.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// BlockUntil waits until at least n timers are pending or timeout elapses.
// It reports whether the condition was reached.
func (f *Fake) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if f.Pending() >= n {
			return true
		}
		select {
		case <-f.waiters:
		case <-time.After(time.Millisecond):
		case <-deadline:
			return f.Pending() >= n
		}
	}
}
