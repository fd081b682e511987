// Package observability carries the daemon's metrics registries and the ops
// HTTP surface that exposes them.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics records gate and auditor activity.
type ProtocolMetrics struct {
	submissions   *prometheus.CounterVec
	audits        *prometheus.CounterVec
	participants  prometheus.Counter
	submitLatency prometheus.Histogram
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

// Protocol returns the lazily-initialised protocol metrics registry.
func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "powergrid",
				Subsystem: "gate",
				Name:      "submissions_total",
				Help:      "Transition submissions by outcome.",
			}, []string{"outcome"}),
			audits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "powergrid",
				Subsystem: "audit",
				Name:      "verdicts_total",
				Help:      "Audit verdicts by result.",
			}, []string{"verdict"}),
			participants: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "powergrid",
				Subsystem: "ledger",
				Name:      "participants_total",
				Help:      "Participants appended to the ledger.",
			}),
			submitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "powergrid",
				Subsystem: "gate",
				Name:      "submit_duration_seconds",
				Help:      "Wall time spent verifying and applying submissions.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.submissions,
			protocolRegistry.audits,
			protocolRegistry.participants,
			protocolRegistry.submitLatency,
		)
	})
	return protocolRegistry
}

// ObserveSubmission records one gate submission and its latency.
func (m *ProtocolMetrics) ObserveSubmission(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	m.submitLatency.Observe(took.Seconds())
}

// ObserveAudit records one audit verdict.
func (m *ProtocolMetrics) ObserveAudit(misbehaved bool) {
	if m == nil {
		return
	}
	verdict := "clean"
	if misbehaved {
		verdict = "misbehaved"
	}
	m.audits.WithLabelValues(verdict).Inc()
}

// ObserveParticipant records one appended participant.
func (m *ProtocolMetrics) ObserveParticipant() {
	if m == nil {
		return
	}
	m.participants.Inc()
}
