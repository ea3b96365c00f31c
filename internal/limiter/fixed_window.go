package limiter

import "github.com/xizzxy/atlas/internal/clock"

// FixedWindowLimiter counts calls per key in windows that start at the first
// call after the previous window expired.
type FixedWindowLimiter struct {
	limit  int64
	window float64
	state  *keyedState[fixedWindow]
}

type fixedWindow struct {
	count       int64
	windowStart float64
}

func NewFixedWindowLimiter(clk clock.Clock, limit, windowSeconds int64) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		limit:  limit,
		window: float64(windowSeconds),
		state:  newKeyedState[fixedWindow](clk),
	}
}

// Allow counts the call even when it is denied, so count may exceed limit
// until the window resets.
func (f *FixedWindowLimiter) Allow(key string) bool {
	return f.state.update(key,
		func(now float64) *fixedWindow {
			return &fixedWindow{windowStart: now}
		},
		func(w *fixedWindow, now float64) bool {
			elapsed := max(now-w.windowStart, 0)
			if elapsed > f.window {
				w.windowStart = now
				w.count = 0
			}
			w.count++
			return w.count <= f.limit
		},
	)
}
