// Package metrics collects request and ledger metrics on a registry owned by
// the caller, exposed in the Prometheus text format.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"pixelforge/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixelforge"

// Collector holds every metric of one server instance.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge

	ledgerEntries *prometheus.CounterVec
	ledgerAmount  *prometheus.CounterVec
}

// New creates a collector on a fresh registry, including Go runtime and
// process metrics.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		ledgerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Committed ledger entries by type.",
		}, []string{"type"}),
		ledgerAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_total",
			Help:      "Sum of committed ledger amounts by type, in wallet currency.",
		}, []string{"type"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.duration,
		c.inFlight,
		c.ledgerEntries,
		c.ledgerAmount,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RequestStarted marks a request in flight and returns the func that
// records its outcome.
func (c *Collector) RequestStarted() func(method, route string, status int, elapsed time.Duration) {
	c.inFlight.Inc()
	return func(method, route string, status int, elapsed time.Duration) {
		c.inFlight.Dec()
		c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		c.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	}
}

// RecordLedgerEntry counts a committed ledger entry. Its signature matches
// ledger.CommitHook.
func (c *Collector) RecordLedgerEntry(_ context.Context, rec domain.WalletTransaction) {
	typ := string(rec.Type)
	c.ledgerEntries.WithLabelValues(typ).Inc()
	c.ledgerAmount.WithLabelValues(typ).Add(rec.Amount.InexactFloat64())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
