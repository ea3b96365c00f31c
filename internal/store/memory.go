package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps policies in process memory. The control plane runs on it
// with ATLAS_CONTROL_STORE=memory for local development; nothing survives a
// restart and gateways cannot load from it.
type Memory struct {
	mu       sync.RWMutex
	policies map[string]Policy
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		policies: make(map[string]Policy),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Put(_ context.Context, p Policy) (Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	p.Created, p.Updated = now, now
	if existing, ok := m.policies[p.Client]; ok {
		p.Created = existing.Created
	}
	m.policies[p.Client] = p
	return p, nil
}

func (m *Memory) Get(_ context.Context, client string) (Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[client]
	if !ok {
		return Policy{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Delete(_ context.Context, client string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.policies[client]; !ok {
		return ErrNotFound
	}
	delete(m.policies, client)
	return nil
}

func (m *Memory) List(_ context.Context) ([]Policy, error) {
	m.mu.RLock()
	out := make([]Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sortPolicies(out)
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
