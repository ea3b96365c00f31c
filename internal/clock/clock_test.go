package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/atlas/internal/clock"
)

func TestSystemIsMonotonic(t *testing.T) {
	c := clock.NewSystem()
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		require.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestManualAdvance(t *testing.T) {
	c := clock.NewManual(0)
	assert.Equal(t, 0.0, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, c.Now(), 1e-9)

	c.Advance(-time.Hour)
	assert.InDelta(t, 1.5, c.Now(), 1e-9, "negative advance must be ignored")
}

func TestManualSet(t *testing.T) {
	c := clock.NewManual(10)
	c.Set(3)
	assert.Equal(t, 3.0, c.Now())
}

func TestManualConcurrentAdvance(t *testing.T) {
	c := clock.NewManual(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(10 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.InDelta(t, 1.0, c.Now(), 1e-9)
}
