// Package admission is the single entry point the transports call to decide
// whether a client's request may proceed.
package admission

import (
	"github.com/xizzxy/atlas/internal/limiter"
	"github.com/xizzxy/atlas/internal/usage"
)

// AnonymousClient stands in for requests that carry no identity.
const AnonymousClient = "anonymous"

// Registry resolves the limiter bound to a client.
type Registry interface {
	ForClient(client string) limiter.Limiter
}

type Gateway struct {
	registry Registry
	counters *usage.Counters
}

func NewGateway(registry Registry, counters *usage.Counters) *Gateway {
	return &Gateway{
		registry: registry,
		counters: counters,
	}
}

// Admit reports whether client may proceed and records the request, plus a
// violation when it may not.
func (g *Gateway) Admit(client string) bool {
	if client == "" {
		client = AnonymousClient
	}

	g.counters.RecordRequest(client)
	allowed := g.registry.ForClient(client).Allow(client)
	if !allowed {
		g.counters.RecordViolation(client)
	}
	return allowed
}

func (g *Gateway) GlobalStats() usage.GlobalStats {
	return g.counters.Global()
}

func (g *Gateway) ClientStats(client string) usage.ClientStats {
	return g.counters.Client(client)
}

func (g *Gateway) Clients() []usage.ClientUsage {
	return g.counters.Clients()
}
