// Package usage keeps process-wide request and violation counters per client.
package usage

import (
	"sort"
	"sync"
	"sync/atomic"
)

type GlobalStats struct {
	TotalRequests   int64 `json:"total_requests"`
	TotalViolations int64 `json:"total_violations"`
	ClientsTracked  int   `json:"clients_tracked"`
}

type ClientStats struct {
	Requests   int64 `json:"requests"`
	Violations int64 `json:"violations"`
}

// ClientUsage is one row of Clients.
type ClientUsage struct {
	Client string `json:"client"`
	ClientStats
}

type clientCounters struct {
	requests   atomic.Int64
	violations atomic.Int64
}

// Counters records usage for the life of the process. Totals are summed from
// the per-client entries when read, so they always match them.
type Counters struct {
	mu      sync.RWMutex
	clients map[string]*clientCounters
}

func NewCounters() *Counters {
	return &Counters{clients: make(map[string]*clientCounters)}
}

func (c *Counters) RecordRequest(client string) {
	c.entry(client).requests.Add(1)
}

func (c *Counters) RecordViolation(client string) {
	c.entry(client).violations.Add(1)
}

func (c *Counters) entry(client string) *clientCounters {
	c.mu.RLock()
	e, ok := c.clients[client]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.clients[client]; ok {
		return e
	}
	e = &clientCounters{}
	c.clients[client] = e
	return e
}

// Global returns the totals over every client seen so far.
func (c *Counters) Global() GlobalStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := GlobalStats{ClientsTracked: len(c.clients)}
	for _, e := range c.clients {
		stats.TotalRequests += e.requests.Load()
		stats.TotalViolations += e.violations.Load()
	}
	return stats
}

// Client returns zero counts for a client that was never seen.
func (c *Counters) Client(client string) ClientStats {
	c.mu.RLock()
	e, ok := c.clients[client]
	c.mu.RUnlock()
	if !ok {
		return ClientStats{}
	}
	return ClientStats{
		Requests:   e.requests.Load(),
		Violations: e.violations.Load(),
	}
}

// Clients lists every client's counts, sorted by client.
func (c *Counters) Clients() []ClientUsage {
	c.mu.RLock()
	out := make([]ClientUsage, 0, len(c.clients))
	for client, e := range c.clients {
		out = append(out, ClientUsage{
			Client: client,
			ClientStats: ClientStats{
				Requests:   e.requests.Load(),
				Violations: e.violations.Load(),
			},
		})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}
