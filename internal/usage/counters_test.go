package usage

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters_Records(t *testing.T) {
	c := NewCounters()

	c.RecordRequest("alice")
	c.RecordRequest("alice")
	c.RecordViolation("alice")
	c.RecordRequest("bob")

	assert.Equal(t, ClientStats{Requests: 2, Violations: 1}, c.Client("alice"))
	assert.Equal(t, ClientStats{Requests: 1}, c.Client("bob"))
	assert.Equal(t, GlobalStats{TotalRequests: 3, TotalViolations: 1, ClientsTracked: 2}, c.Global())
}

func TestCounters_UnknownClientIsZero(t *testing.T) {
	c := NewCounters()

	assert.Equal(t, ClientStats{}, c.Client("ghost"))
	assert.Equal(t, GlobalStats{}, c.Global(), "reading must not register the client")
}

func TestCounters_ClientsSorted(t *testing.T) {
	c := NewCounters()
	for _, id := range []string{"carol", "alice", "bob"} {
		c.RecordRequest(id)
	}
	c.RecordViolation("bob")

	got := c.Clients()
	require.Len(t, got, 3)
	assert.Equal(t, "alice", got[0].Client)
	assert.Equal(t, ClientUsage{Client: "bob", ClientStats: ClientStats{Requests: 1, Violations: 1}}, got[1])
	assert.Equal(t, "carol", got[2].Client)
}

func TestCounters_TotalsMatchClientsUnderLoad(t *testing.T) {
	c := NewCounters()

	const (
		clients  = 16
		requests = 250
	)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	snapshots := make(chan error, 1)

	// Snapshots taken while writers run must stay self-consistent.
	go func() {
		for {
			select {
			case <-stop:
				close(snapshots)
				return
			default:
			}
			var reqs, viols int64
			global := c.Global()
			for _, u := range c.Clients() {
				reqs += u.Requests
				viols += u.Violations
			}
			if reqs < global.TotalRequests || viols < global.TotalViolations {
				snapshots <- fmt.Errorf("per-client sums %d/%d behind totals %d/%d", reqs, viols, global.TotalRequests, global.TotalViolations)
				close(snapshots)
				return
			}
		}
	}()

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i)
			for j := 0; j < requests; j++ {
				c.RecordRequest(id)
				if j%5 == 0 {
					c.RecordViolation(id)
				}
			}
		}(i)
	}
	wg.Wait()
	close(stop)
	for err := range snapshots {
		require.NoError(t, err)
	}

	global := c.Global()
	assert.Equal(t, int64(clients*requests), global.TotalRequests)
	assert.Equal(t, int64(clients*requests/5), global.TotalViolations)
	assert.Equal(t, clients, global.ClientsTracked)

	var reqs, viols int64
	for _, u := range c.Clients() {
		reqs += u.Requests
		viols += u.Violations
	}
	assert.Equal(t, global.TotalRequests, reqs)
	assert.Equal(t, global.TotalViolations, viols)
}

func TestCollector(t *testing.T) {
	c := NewCounters()
	c.RecordRequest("alice")
	c.RecordRequest("bob")
	c.RecordViolation("bob")

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector("atlas", c)))

	expected := `
# HELP atlas_clients_tracked Number of distinct clients seen since start.
# TYPE atlas_clients_tracked gauge
atlas_clients_tracked 2
# HELP atlas_requests_total Total number of admission checks.
# TYPE atlas_requests_total counter
atlas_requests_total 2
# HELP atlas_violations_total Total number of denied admission checks.
# TYPE atlas_violations_total counter
atlas_violations_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}
