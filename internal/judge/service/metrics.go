package service

import (
	"time"

	"codejudge/internal/judge/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the judge's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	verdicts     *prometheus.CounterVec
	rateLimited  prometheus.Counter
	sandboxCalls *prometheus.HistogramVec
	firstAccepts prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judge",
			Name:      "verdicts_total",
			Help:      "Judged submissions by verdict.",
		}, []string{"verdict"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judge",
			Name:      "rate_limited_total",
			Help:      "Judge requests rejected by the rate limiter.",
		}),
		sandboxCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "judge",
			Name:      "sandbox_call_duration_seconds",
			Help:      "Sandbox execution time per test case.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"outcome"}),
		firstAccepts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "judge",
			Name:      "first_accepts_total",
			Help:      "First acceptances committed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.verdicts, m.rateLimited, m.sandboxCalls, m.firstAccepts)
	}
	return m
}

func (m *Metrics) ObserveSandboxCall(outcome model.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sandboxCalls.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

func (m *Metrics) observeVerdict(v model.Verdict) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(string(v)).Inc()
}

func (m *Metrics) observeRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) observeFirstAccept() {
	if m == nil {
		return
	}
	m.firstAccepts.Inc()
}
