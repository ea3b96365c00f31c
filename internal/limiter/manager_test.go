package limiter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/atlas/internal/clock"
)

func testPolicies() Policies {
	return Policies{
		DefaultPolicy: {Algorithm: AlgoFixedWindow, Limit: 2, WindowSeconds: 60},
		"sliding":     {Algorithm: AlgoSlidingWindow, Limit: 3, WindowSeconds: 2},
		"bucket":      {Algorithm: AlgoTokenBucket, Capacity: 1, RefillRatePerSecond: 1},
	}
}

func TestNewManager_RejectsInvalidPolicies(t *testing.T) {
	clk := clock.NewManual(0)

	_, err := NewManager(clk, Policies{
		"alice": {Algorithm: AlgoFixedWindow, Limit: 1, WindowSeconds: 1},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig, "default entry is mandatory")

	bad := testPolicies()
	bad["broken"] = Config{Algorithm: AlgoSlidingWindow, Limit: 0, WindowSeconds: 1}
	_, err = NewManager(clk, bad)
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), `"broken"`)

	bad = testPolicies()
	bad[""] = Config{Algorithm: AlgoFixedWindow, Limit: 1, WindowSeconds: 1}
	_, err = NewManager(clk, bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestManager_BindsConfiguredAlgorithm(t *testing.T) {
	m, err := NewManager(clock.NewManual(0), testPolicies())
	require.NoError(t, err)

	assert.IsType(t, &SlidingWindowLimiter{}, m.ForClient("sliding"))
	assert.IsType(t, &TokenBucketLimiter{}, m.ForClient("bucket"))
	assert.IsType(t, &FixedWindowLimiter{}, m.ForClient("stranger"), "unknown clients use the default policy")
	assert.Equal(t, 3, m.Len())
}

func TestManager_ReturnsSameInstance(t *testing.T) {
	m, err := NewManager(clock.NewManual(0), testPolicies())
	require.NoError(t, err)

	first := m.ForClient("sliding")
	assert.Same(t, first, m.ForClient("sliding"))
	assert.Equal(t, 1, m.Len())
}

func TestManager_InstancesAreIndependent(t *testing.T) {
	m, err := NewManager(clock.NewManual(0), testPolicies())
	require.NoError(t, err)

	// Two clients on the default policy each get their own quota.
	a := m.ForClient("a")
	b := m.ForClient("b")
	assert.NotSame(t, a, b)

	assert.Equal(t, []bool{true, true, false}, allowN(a, "a", 3))
	assert.Equal(t, []bool{true, true, false}, allowN(b, "b", 3))

	assert.Equal(t, []bool{true, false}, allowN(m.ForClient("bucket"), "bucket", 2))
	assert.Equal(t, []bool{true, true, true, false}, allowN(m.ForClient("sliding"), "sliding", 4))
}

func TestManager_PolicyFor(t *testing.T) {
	m, err := NewManager(clock.NewManual(0), testPolicies())
	require.NoError(t, err)

	assert.Equal(t, AlgoTokenBucket, m.PolicyFor("bucket").Algorithm)
	assert.Equal(t, testPolicies()[DefaultPolicy], m.PolicyFor("nobody"))
}

func TestManager_CopiesPolicies(t *testing.T) {
	p := testPolicies()
	m, err := NewManager(clock.NewManual(0), p)
	require.NoError(t, err)

	p["bucket"] = Config{Algorithm: AlgoFixedWindow, Limit: 9, WindowSeconds: 9}
	assert.IsType(t, &TokenBucketLimiter{}, m.ForClient("bucket"))
}

func TestManager_ConcurrentFirstResolve(t *testing.T) {
	m, err := NewManager(clock.NewManual(0), testPolicies())
	require.NoError(t, err)

	const callers = 64
	got := make([]Limiter, callers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i] = m.ForClient("newcomer")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range got {
		require.Same(t, got[0], got[i], "caller %d", i)
	}
	assert.Equal(t, 1, m.Len())
}

func TestManager_ManyClients(t *testing.T) {
	m, err := NewManager(clock.NewManual(0), testPolicies())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i)
			m.ForClient(id).Allow(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, m.Len())
}
