// Package metrics exposes Prometheus instruments for provider attempts,
// backoffs and days-left gauges. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for provider attempts.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
)

// Metrics groups every lapse instrument.
type Metrics struct {
	ProviderAttempts *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderBackoffs *prometheus.CounterVec
	ExpiryDaysLeft   *prometheus.GaugeVec
}

// New registers the lapse instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lapse_provider_attempts_total",
			Help: "Expiry provider calls by check type, provider and outcome",
		}, []string{"check", "provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lapse_provider_latency_seconds",
			Help:    "Wall-clock latency of expiry provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"check", "provider"}),
		ProviderBackoffs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lapse_provider_backoffs_total",
			Help: "Backoff windows opened after a provider failed",
		}, []string{"check", "provider"}),
		ExpiryDaysLeft: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lapse_expiry_days_left",
			Help: "Days until the stored expiry date, by domain and check type",
		}, []string{"domain", "check"}),
	}
}

// ObserveAttempt records one provider call.
func (m *Metrics) ObserveAttempt(check, provider string, valid bool, latency time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeInvalid
	if valid {
		outcome = OutcomeValid
	}
	m.ProviderAttempts.WithLabelValues(check, provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(check, provider).Observe(latency.Seconds())
}

// IncBackoff counts a newly applied backoff.
func (m *Metrics) IncBackoff(check, provider string) {
	if m == nil {
		return
	}
	m.ProviderBackoffs.WithLabelValues(check, provider).Inc()
}

// SetDaysLeft publishes the days remaining until expiresAt.
func (m *Metrics) SetDaysLeft(domain, check string, expiresAt, now time.Time) {
	if m == nil {
		return
	}
	m.ExpiryDaysLeft.WithLabelValues(domain, check).Set(expiresAt.Sub(now).Hours() / 24)
}
