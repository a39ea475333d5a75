// Package metrics exposes application-level prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics holds the counters the entry points and reconcilers record into.
// A nil *Metrics is valid and records nothing, so tests and tools can skip
// registration entirely.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	repliesDetected *prometheus.CounterVec
	quotaDecisions  *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachway_webhook_events_total",
			Help: "Webhook deliveries received, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		repliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachway_replies_detected_total",
			Help: "Replies reconciled into enrollments, by detection method.",
		}, []string{"method"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachway_quota_decisions_total",
			Help: "Quota ledger decisions, by counter kind and outcome.",
		}, []string{"kind", "allowed"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reachway_job_runs_total",
			Help: "Batch worker runs, by job and outcome.",
		}, []string{"job", "outcome"}),
	}
	reg.MustRegister(m.webhookEvents, m.repliesDetected, m.quotaDecisions, m.jobRuns)
	return m
}

func (m *Metrics) RecordWebhookEvent(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordReplyDetected(method string) {
	if m == nil {
		return
	}
	m.repliesDetected.WithLabelValues(method).Inc()
}

func (m *Metrics) RecordQuotaDecision(kind string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "false"
	if allowed {
		outcome = "true"
	}
	m.quotaDecisions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordJobRun(job, outcome string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
}

var Module = fx.Module("observability.metrics",
	fx.Provide(func() *Metrics {
		return New(prometheus.DefaultRegisterer)
	}),
)
