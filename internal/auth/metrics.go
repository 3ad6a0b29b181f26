// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded besides the error kinds.
const (
	OutcomeSuccess = "success"
	// OutcomeSuppressed marks calls that reported success while swallowing a
	// provider failure (logout, password reset request).
	OutcomeSuppressed = "suppressed_error"
)

// Metrics records auth operation outcomes.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers auth metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topten_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "topten_auth_operation_duration_seconds",
				Help:    "Latency of auth operations including identity provider calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(m.Operations)
	reg.MustRegister(m.Duration)

	return m
}

func (m *Metrics) observe(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.Duration.WithLabelValues(op).Observe(elapsed.Seconds())
}
