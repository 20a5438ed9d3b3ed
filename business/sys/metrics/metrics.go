// Package metrics constructs the metrics the node exposes to prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "node"

// Node is the set of counters read from the running node at scrape time.
type Node interface {
	RetrieveMined() uint64
	RetrieveHashes() uint64
	RetrieveReorgs() uint64
	RetrieveMempoolLength() int
}

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	durations       *prometheus.HistogramVec
	errors          prometheus.Counter
	panics          prometheus.Counter
	height          prometheus.Gauge
	totalDifficulty prometheus.Gauge
}

// New constructs the collectors on a private registry along with the go
// runtime and process collectors.
func New() *Metrics {
	m := Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total HTTP requests that ended in an error.",
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Total HTTP requests that panicked.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_size",
			Help:      "Number of blocks in the canonical chain.",
		}),
		totalDifficulty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_total_difficulty",
			Help:      "Cumulative difficulty of the canonical chain.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.durations,
		m.errors,
		m.panics,
		m.height,
		m.totalDifficulty,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &m
}

// WatchNode registers collectors that read the node counters on scrape.
func (m *Metrics) WatchNode(node Node) {
	counter := func(name string, help string, fn func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}

	m.registry.MustRegister(
		counter("mined_blocks_total", "Blocks mined by this node and added to its chain.", node.RetrieveMined),
		counter("hashes_total", "Block header hashes computed by the miners.", node.RetrieveHashes),
		counter("reorgs_total", "Times the canonical chain was replaced.", node.RetrieveReorgs),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mempool_size",
			Help:      "Pending transactions in the mempool.",
		}, func() float64 { return float64(node.RetrieveMempoolLength()) }),
	)
}

// SetChain records the size and cumulative difficulty of the chain head.
func (m *Metrics) SetChain(size uint64, totalDifficulty float64) {
	m.height.Set(float64(size))
	m.totalDifficulty.Set(totalDifficulty)
}

// AddRequest records a completed request.
func (m *Metrics) AddRequest(route string, method string, status int, seconds float64) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.durations.WithLabelValues(route, method).Observe(seconds)
}

// AddError records a request that ended in an error.
func (m *Metrics) AddError() {
	m.errors.Inc()
}

// AddPanic records a request that panicked.
func (m *Metrics) AddPanic() {
	m.panics.Inc()
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
