package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/rentroll-engine/reconcile"
)

// Metrics exposes reconciliation counters on /metrics. Registered on a
// per-server registry so tests can spin up handlers independently.
type Metrics struct {
	Registry *prometheus.Registry

	ReconcileRuns prometheus.Counter
	ReconcileTime prometheus.Histogram
	Findings      *prometheus.CounterVec
	RentRollRows  prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "rentroll_reconcile_runs_total",
			Help: "Total number of reconcile runs",
		}),
		ReconcileTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentroll_reconcile_duration_seconds",
			Help:    "Duration of reconcile runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rentroll_findings_total",
			Help: "Findings emitted by reconcile runs, by kind",
		}, []string{"kind"}),
		RentRollRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rentroll_rent_roll_rows",
			Help: "Rent-roll rows produced by the most recent reconcile run",
		}),
	}
}

// ObserveRun records one completed reconcile run.
func (m *Metrics) ObserveRun(result *reconcile.Result, seconds float64) {
	m.ReconcileRuns.Inc()
	m.ReconcileTime.Observe(seconds)
	m.RentRollRows.Set(float64(result.Summary.RentRollRows))
	for kind, n := range result.Summary.ByKind {
		m.Findings.WithLabelValues(string(kind)).Add(float64(n))
	}
}
