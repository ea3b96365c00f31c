package limiter

import (
	"errors"
	"fmt"

	"github.com/xizzxy/atlas/internal/clock"
)

type Algorithm string

const (
	AlgoFixedWindow   Algorithm = "fixed"
	AlgoSlidingWindow Algorithm = "sliding"
	AlgoTokenBucket   Algorithm = "token"
)

// ErrInvalidConfig is wrapped by every configuration error. It is fatal at
// startup; admissions themselves never fail.
var ErrInvalidConfig = errors.New("invalid limiter config")

// Config selects one algorithm and carries the parameters it needs.
// Limit and WindowSeconds apply to fixed and sliding windows, Capacity and
// RefillRatePerSecond to the token bucket.
type Config struct {
	Algorithm           Algorithm `yaml:"algorithm" json:"algorithm"`
	Limit               int64     `yaml:"limit,omitempty" json:"limit,omitempty"`
	WindowSeconds       int64     `yaml:"window_seconds,omitempty" json:"window_seconds,omitempty"`
	Capacity            float64   `yaml:"capacity,omitempty" json:"capacity,omitempty"`
	RefillRatePerSecond float64   `yaml:"refill_rate_per_second,omitempty" json:"refill_rate_per_second,omitempty"`
}

// Validate reports whether the parameters for the selected algorithm are usable.
func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgoFixedWindow, AlgoSlidingWindow:
		if c.Limit <= 0 {
			return fmt.Errorf("%w: %s limit must be > 0, got %d", ErrInvalidConfig, c.Algorithm, c.Limit)
		}
		if c.WindowSeconds <= 0 {
			return fmt.Errorf("%w: %s window_seconds must be > 0, got %d", ErrInvalidConfig, c.Algorithm, c.WindowSeconds)
		}
	case AlgoTokenBucket:
		// Negated comparisons so NaN is rejected too.
		if !(c.Capacity > 0) {
			return fmt.Errorf("%w: token capacity must be > 0, got %v", ErrInvalidConfig, c.Capacity)
		}
		if !(c.RefillRatePerSecond >= 0) {
			return fmt.Errorf("%w: token refill_rate_per_second must be >= 0, got %v", ErrInvalidConfig, c.RefillRatePerSecond)
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	return nil
}

// Limiter answers whether key may consume one more unit right now.
// Implementations are safe for concurrent use.
type Limiter interface {
	Allow(key string) bool
}

// New builds the limiter selected by cfg.
func New(clk clock.Clock, cfg Config) (Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Algorithm {
	case AlgoFixedWindow:
		return NewFixedWindowLimiter(clk, cfg.Limit, cfg.WindowSeconds), nil
	case AlgoSlidingWindow:
		return NewSlidingWindowLimiter(clk, cfg.Limit, cfg.WindowSeconds), nil
	default:
		return NewTokenBucketLimiter(clk, cfg.Capacity, cfg.RefillRatePerSecond), nil
	}
}
