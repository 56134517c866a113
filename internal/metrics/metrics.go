// Package metrics exposes scanner counters over a Prometheus endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the scanner's Prometheus collectors on a private registry so
// tests can create them freely without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal     prometheus.Counter
	CycleDuration   prometheus.Histogram
	SymbolsScanned  prometheus.Counter
	CandidatesTotal prometheus.Counter
	RejectionsTotal *prometheus.CounterVec
	TradesTotal     prometheus.Counter
	OpenPositions   prometheus.Gauge
	AccountBalance  prometheus.Gauge
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_cycles_total",
			Help: "Completed scan cycles.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_cycle_duration_seconds",
			Help:    "Wall time of a scan cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		SymbolsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_symbols_scanned_total",
			Help: "Symbol scans attempted.",
		}),
		CandidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_candidates_total",
			Help: "Candidates produced by scans.",
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_rejections_total",
			Help: "Scan and execution rejections by reason.",
		}, []string{"reason"}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_trades_executed_total",
			Help: "Orders successfully placed.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_open_positions",
			Help: "Open positions at the end of the last cycle.",
		}),
		AccountBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_account_balance",
			Help: "Account balance at the end of the last cycle.",
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SymbolsScanned,
		m.CandidatesTotal,
		m.RejectionsTotal,
		m.TradesTotal,
		m.OpenPositions,
		m.AccountBalance,
	)
	return m
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(elapsed time.Duration) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(elapsed.Seconds())
}

// RecordRejection counts a rejection by reason code.
func (m *Metrics) RecordRejection(reason string) {
	if reason == "" {
		return
	}
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
