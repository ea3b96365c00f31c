package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/atlas/internal/limiter"
)

func TestMemory_CRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	tick := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return tick }

	created, err := m.Put(ctx, Policy{
		Client: "alice",
		Config: limiter.Config{Algorithm: limiter.AlgoFixedWindow, Limit: 5, WindowSeconds: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, tick, created.Created)

	tick = tick.Add(time.Hour)
	updated, err := m.Put(ctx, Policy{
		Client: "alice",
		Config: limiter.Config{Algorithm: limiter.AlgoTokenBucket, Capacity: 5, RefillRatePerSecond: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, created.Created, updated.Created, "created survives updates")
	assert.Equal(t, tick, updated.Updated)

	got, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, limiter.AlgoTokenBucket, got.Algorithm)

	require.NoError(t, m.Delete(ctx, "alice"))
	_, err = m.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, "alice"), ErrNotFound)
}

func TestMemory_ListSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"carol", "alice", "bob"} {
		_, err := m.Put(ctx, Policy{Client: id, Config: limiter.Config{Algorithm: limiter.AlgoTokenBucket, Capacity: 1}})
		require.NoError(t, err)
	}

	got, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{got[0].Client, got[1].Client, got[2].Client})
}

func TestLoadPolicies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := LoadPolicies(ctx, m)
	assert.ErrorIs(t, err, limiter.ErrInvalidConfig, "an empty store has no default policy")

	_, err = m.Put(ctx, Policy{Client: limiter.DefaultPolicy, Config: limiter.Config{Algorithm: limiter.AlgoSlidingWindow, Limit: 10, WindowSeconds: 1}})
	require.NoError(t, err)
	_, err = m.Put(ctx, Policy{Client: "bulk", Config: limiter.Config{Algorithm: limiter.AlgoTokenBucket, Capacity: 100, RefillRatePerSecond: 5}})
	require.NoError(t, err)

	policies, err := LoadPolicies(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, limiter.Policies{
		limiter.DefaultPolicy: {Algorithm: limiter.AlgoSlidingWindow, Limit: 10, WindowSeconds: 1},
		"bulk":                {Algorithm: limiter.AlgoTokenBucket, Capacity: 100, RefillRatePerSecond: 5},
	}, policies)
}

func TestDecodePolicy(t *testing.T) {
	doc := `{"client":"alice","algorithm":"sliding","limit":3,"window_seconds":2,"created":"2024-03-01T12:00:00Z","updated":"2024-03-01T13:00:00Z"}`

	p, err := decodePolicy([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Client)
	assert.Equal(t, limiter.Config{Algorithm: limiter.AlgoSlidingWindow, Limit: 3, WindowSeconds: 2}, p.Config)
	assert.Equal(t, 13, p.Updated.Hour())

	_, err = decodePolicy([]byte("{"))
	assert.Error(t, err)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "/atlas/policies/", normalizePrefix(""))
	assert.Equal(t, "/custom/", normalizePrefix("/custom"))
	assert.Equal(t, "/custom/", normalizePrefix("/custom/"))
}
