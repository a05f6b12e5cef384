package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FocuswithJustin/reflink/internal/document"
)

// Metrics holds the Prometheus collectors of one server. Each server owns
// its registry, so several can live in one process.
type Metrics struct {
	registry  *prometheus.Registry
	rewrites  *prometheus.CounterVec
	citations *prometheus.CounterVec
	duration  prometheus.Histogram
	wsClients prometheus.Gauge
}

// NewMetrics creates the rewrite metrics plus the Go runtime collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rewrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflink_rewrites_total",
			Help: "Documents rewritten, by format and whether any link was placed",
		}, []string{"format", "changed"}),
		citations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflink_citations_total",
			Help: "Citation links placed, by URL rule",
		}, []string{"rule"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reflink_rewrite_duration_seconds",
			Help:    "Time spent rewriting one document",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reflink_websocket_clients",
			Help: "Connected live preview clients",
		}),
	}
	m.registry.MustRegister(
		m.rewrites,
		m.citations,
		m.duration,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// observe records one finished rewrite.
func (m *Metrics) observe(f document.Format, st document.Stats, elapsed time.Duration) {
	m.rewrites.WithLabelValues(string(f), strconv.FormatBool(st.Changed > 0)).Inc()
	for _, l := range st.Links {
		m.citations.WithLabelValues(string(l.Link.Rule)).Inc()
	}
	m.duration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
