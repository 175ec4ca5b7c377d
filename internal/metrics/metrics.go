// Package metrics exposes Prometheus collectors for the accrual engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's collectors so callers register them once
// against their own registry.
type Metrics struct {
	ClaimsCommitted prometheus.Counter
	ClaimsRejected  prometheus.Counter
	ClaimsFailed    prometheus.Counter
	AccruedUnits    prometheus.Counter
	ClaimedUnits    prometheus.Counter
	ActiveSessions  prometheus.Gauge
	ClaimDuration   prometheus.Histogram
	GrantsIssued    *prometheus.CounterVec
}

// New creates the engine collectors.
func New() *Metrics {
	return &Metrics{
		ClaimsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mining_claims_committed_total",
			Help: "Total number of claims committed to the ledger",
		}),
		ClaimsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mining_claims_rejected_total",
			Help: "Total number of duplicate claims rejected by token",
		}),
		ClaimsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mining_claims_failed_total",
			Help: "Total number of claims that failed and remain retryable",
		}),
		AccruedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mining_accrued_units_total",
			Help: "Total units accrued across all users",
		}),
		ClaimedUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mining_claimed_units_total",
			Help: "Total units moved into the durable ledger",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mining_active_sessions",
			Help: "Number of currently open user sessions",
		}),
		ClaimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mining_claim_duration_seconds",
			Help:    "Claim commit duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		GrantsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_grants_issued_total",
			Help: "Boost grants issued, by source",
		}, []string{"source"}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ClaimsCommitted,
		m.ClaimsRejected,
		m.ClaimsFailed,
		m.AccruedUnits,
		m.ClaimedUnits,
		m.ActiveSessions,
		m.ClaimDuration,
		m.GrantsIssued,
	)
}
