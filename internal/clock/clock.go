// Package clock abstracts the time source used by the limiters so tests can
// move time forward without sleeping.
package clock

import (
	"sync"
	"time"
)

// Clock returns monotonic time in seconds since an arbitrary epoch.
// Only differences between two readings are meaningful.
type Clock interface {
	Now() float64
}

// System reads Go's monotonic clock, so wall-clock adjustments never move it
// backwards.
type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() float64 {
	return time.Since(s.start).Seconds()
}

// Manual is a settable clock for tests. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now float64
}

func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d. Negative durations are ignored.
func (m *Manual) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	m.mu.Lock()
	m.now += d.Seconds()
	m.mu.Unlock()
}

// Set jumps to an absolute reading; it may move time backwards.
func (m *Manual) Set(seconds float64) {
	m.mu.Lock()
	m.now = seconds
	m.mu.Unlock()
}
