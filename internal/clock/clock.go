package clock

import (
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	// AfterFunc arms a one-shot timer that calls f after d.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop cancels the timer and reports whether the call prevented it from
	// firing. Stopping an already-stopped or fired timer is safe.
	Stop() bool
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// AfterFunc arms a timer on the runtime timer heap.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

// Mock is a Clock under manual control. Timers armed against it fire only
// when Advance moves the mock time past their deadline.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

// NewMock returns a Mock clock fixed at t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now returns the mock time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers a timer that fires when Advance crosses its deadline.
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	t := &mockTimer{deadline: m.now.Add(d), f: f, clock: m}
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

// Advance moves the mock time forward, firing due timers synchronously in
// deadline order.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	m.mu.Unlock()

	for {
		t := m.nextDue(now)
		if t == nil {
			return
		}
		t.fire()
	}
}

func (m *Mock) nextDue(now time.Time) *mockTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due *mockTimer
	for _, t := range m.timers {
		if t.stopped || t.fired || t.deadline.After(now) {
			continue
		}
		if due == nil || t.deadline.Before(due.deadline) {
			due = t
		}
	}
	return due
}

// PendingTimers reports how many armed timers have neither fired nor been
// stopped. Tests use it to assert that timers are not leaked.
func (m *Mock) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type mockTimer struct {
	deadline time.Time
	f        func()
	clock    *Mock
	stopped  bool
	fired    bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *mockTimer) fire() {
	t.clock.mu.Lock()
	if t.fired || t.stopped {
		t.clock.mu.Unlock()
		return
	}
	t.fired = true
	f := t.f
	t.clock.mu.Unlock()
	f()
}
