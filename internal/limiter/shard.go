package limiter

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/xizzxy/atlas/internal/clock"
)

const shardCount = 16

type shard[S any] struct {
	mu    sync.Mutex
	state map[string]*S
}

// keyedState spreads per-key state over independently locked shards so that
// decisions for keys on different shards never wait on each other.
type keyedState[S any] struct {
	clock  clock.Clock
	shards [shardCount]shard[S]
}

func newKeyedState[S any](clk clock.Clock) *keyedState[S] {
	return &keyedState[S]{clock: clk}
}

// update runs decide on key's state while holding the key's shard lock. The
// clock is read and missing state is created inside the same critical
// section, so one key's read-modify-write is never interleaved.
func (k *keyedState[S]) update(key string, fresh func(now float64) *S, decide func(st *S, now float64) bool) bool {
	sh := &k.shards[xxhash.Sum64String(key)%shardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := k.clock.Now()
	st, ok := sh.state[key]
	if !ok {
		if sh.state == nil {
			sh.state = make(map[string]*S)
		}
		st = fresh(now)
		sh.state[key] = st
	}
	return decide(st, now)
}

// peek returns a copy of key's state, if any.
func (k *keyedState[S]) peek(key string) (S, bool) {
	sh := &k.shards[xxhash.Sum64String(key)%shardCount]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var zero S
	st, ok := sh.state[key]
	if !ok {
		return zero, false
	}
	return *st, true
}

func (k *keyedState[S]) len() int {
	n := 0
	for i := range k.shards {
		sh := &k.shards[i]
		sh.mu.Lock()
		n += len(sh.state)
		sh.mu.Unlock()
	}
	return n
}
