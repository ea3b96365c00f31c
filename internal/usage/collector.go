package usage

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes Counters to Prometheus. Each scrape reads one Global
// snapshot so the exported totals agree with each other.
type Collector struct {
	counters *Counters

	requests   *prometheus.Desc
	violations *prometheus.Desc
	clients    *prometheus.Desc
}

func NewCollector(namespace string, counters *Counters) *Collector {
	return &Collector{
		counters: counters,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Total number of admission checks.",
			nil, nil,
		),
		violations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "violations_total"),
			"Total number of denied admission checks.",
			nil, nil,
		),
		clients: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "clients_tracked"),
			"Number of distinct clients seen since start.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.violations
	ch <- c.clients
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.counters.Global()
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(stats.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.violations, prometheus.CounterValue, float64(stats.TotalViolations))
	ch <- prometheus.MustNewConstMetric(c.clients, prometheus.GaugeValue, float64(stats.ClientsTracked))
}
