package limiter

import "github.com/xizzxy/atlas/internal/clock"

// TokenBucketLimiter refills lazily from the time elapsed since the key's
// previous call; there is no background timer.
type TokenBucketLimiter struct {
	capacity     float64
	refillPerSec float64
	state        *keyedState[tokenBucket]
}

type tokenBucket struct {
	tokens     float64
	lastRefill float64
}

func NewTokenBucketLimiter(clk clock.Clock, capacity, refillRatePerSecond float64) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		capacity:     capacity,
		refillPerSec: refillRatePerSecond,
		state:        newKeyedState[tokenBucket](clk),
	}
}

func (t *TokenBucketLimiter) Allow(key string) bool {
	return t.state.update(key,
		func(now float64) *tokenBucket {
			return &tokenBucket{tokens: t.capacity, lastRefill: now}
		},
		func(b *tokenBucket, now float64) bool {
			if elapsed := now - b.lastRefill; elapsed > 0 {
				b.tokens = min(t.capacity, b.tokens+elapsed*t.refillPerSec)
				b.lastRefill = now
			}

			if b.tokens < 1 {
				return false
			}
			b.tokens--
			return true
		},
	)
}
