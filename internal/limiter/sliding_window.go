package limiter

import "github.com/xizzxy/atlas/internal/clock"

// SlidingWindowLimiter keeps the timestamps of admitted calls and admits a
// new one while fewer than limit fall inside the trailing window.
type SlidingWindowLimiter struct {
	limit  int64
	window float64
	state  *keyedState[slidingWindow]
}

type slidingWindow struct {
	// admitted timestamps, oldest first
	stamps []float64
}

func NewSlidingWindowLimiter(clk clock.Clock, limit, windowSeconds int64) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:  limit,
		window: float64(windowSeconds),
		state:  newKeyedState[slidingWindow](clk),
	}
}

// Allow leaves no trace for a denied call.
func (s *SlidingWindowLimiter) Allow(key string) bool {
	return s.state.update(key,
		func(float64) *slidingWindow {
			return &slidingWindow{}
		},
		func(w *slidingWindow, now float64) bool {
			if n := len(w.stamps); n > 0 {
				// keep the log ascending if the clock ever steps back
				now = max(now, w.stamps[n-1])
			}

			cutoff := now - s.window
			expired := 0
			for expired < len(w.stamps) && w.stamps[expired] < cutoff {
				expired++
			}
			if expired > 0 {
				w.stamps = append(w.stamps[:0], w.stamps[expired:]...)
			}

			if int64(len(w.stamps)) >= s.limit {
				return false
			}
			w.stamps = append(w.stamps, now)
			return true
		},
	)
}
