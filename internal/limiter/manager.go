package limiter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xizzxy/atlas/internal/clock"
)

// DefaultPolicy names the entry used for clients without one of their own.
const DefaultPolicy = "default"

// Policies maps a client identity to its limiter configuration.
type Policies map[string]Config

// DefaultPolicies is the table used when nothing else is configured.
func DefaultPolicies() Policies {
	return Policies{
		DefaultPolicy: {Algorithm: AlgoFixedWindow, Limit: 100, WindowSeconds: 60},
	}
}

// Validate checks every entry and requires the default entry.
func (p Policies) Validate() error {
	if _, ok := p[DefaultPolicy]; !ok {
		return fmt.Errorf("%w: missing %q policy", ErrInvalidConfig, DefaultPolicy)
	}

	clients := make([]string, 0, len(p))
	for client := range p {
		clients = append(clients, client)
	}
	sort.Strings(clients)

	for _, client := range clients {
		if client == "" {
			return fmt.Errorf("%w: empty client identity", ErrInvalidConfig)
		}
		if err := p[client].Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", client, err)
		}
	}
	return nil
}

// Manager binds each client identity to its own limiter instance, built from
// the client's policy on first use and kept for the life of the process.
//
// Bound limiters are never evicted, so memory grows with the number of
// distinct identities seen.
type Manager struct {
	clock    clock.Clock
	policies Policies

	mu       sync.RWMutex
	limiters map[string]Limiter
}

// NewManager validates policies up front; an invalid table is a startup error.
func NewManager(clk clock.Clock, policies Policies) (*Manager, error) {
	if err := policies.Validate(); err != nil {
		return nil, err
	}

	own := make(Policies, len(policies))
	for client, cfg := range policies {
		own[client] = cfg
	}

	return &Manager{
		clock:    clk,
		policies: own,
		limiters: make(map[string]Limiter),
	}, nil
}

// ForClient returns the limiter bound to client, creating it if needed.
// Concurrent first calls for the same client all get the same instance.
func (m *Manager) ForClient(client string) Limiter {
	m.mu.RLock()
	l, ok := m.limiters[client]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.limiters[client]; ok {
		return l
	}

	l, err := New(m.clock, m.PolicyFor(client))
	if err != nil {
		panic(fmt.Sprintf("limiter for %q: %v (policies are validated in NewManager)", client, err))
	}
	m.limiters[client] = l
	return l
}

// PolicyFor returns the client's own policy or the default one.
func (m *Manager) PolicyFor(client string) Config {
	if cfg, ok := m.policies[client]; ok {
		return cfg
	}
	return m.policies[DefaultPolicy]
}

// Len reports how many identities have a bound limiter.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.limiters)
}
