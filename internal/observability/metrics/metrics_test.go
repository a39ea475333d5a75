package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordWebhookEvent("whatsapp", "ok")
	m.RecordWebhookEvent("whatsapp", "ok")
	m.RecordReplyDetected("webhook")
	m.RecordReplyDetected("email_poll")
	m.RecordQuotaDecision("messaging_credit", true)
	m.RecordJobRun("reply-poll", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("whatsapp", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repliesDetected.WithLabelValues("webhook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repliesDetected.WithLabelValues("email_poll")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotaDecisions.WithLabelValues("messaging_credit", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("reply-poll", "ok")))
}

func TestNilReceiverRecordsNothing(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordWebhookEvent("whatsapp", "ok")
		m.RecordReplyDetected("webhook")
		m.RecordQuotaDecision("ai_daily", false)
		m.RecordJobRun("lead-enrichment", "error")
	})
}
