// Package metrics exposes Prometheus counters for call routing and messaging.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics exposes counters/histograms for call and SMS flows.
// Every method is safe on a nil receiver.
type DispatchMetrics struct {
	callsRouted    *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	aiReplies      *prometheus.CounterVec
	inboundTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		callsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "calls_routed_total",
			Help:      "Inbound calls by routing decision",
		}, []string{"decision", "reason"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "outbound_total",
			Help:      "Outbound SMS attempts by message type and status",
		}, []string{"type", "status"}),
		aiReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "ai_replies_total",
			Help:      "AI reply outcomes (reply, escalated, suppressed)",
		}, []string{"outcome"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Name:      "inbound_webhook_total",
			Help:      "Inbound provider webhooks by endpoint and result",
		}, []string{"endpoint", "result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontdesk",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsRouted, m.outboundTotal, m.aiReplies, m.inboundTotal, m.webhookLatency)
	return m
}

func (m *DispatchMetrics) ObserveCallRouted(decision, reason string) {
	if m == nil {
		return
	}
	m.callsRouted.WithLabelValues(decision, reason).Inc()
}

func (m *DispatchMetrics) ObserveOutbound(messageType, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *DispatchMetrics) ObserveAIReply(outcome string) {
	if m == nil {
		return
	}
	m.aiReplies.WithLabelValues(outcome).Inc()
}

func (m *DispatchMetrics) ObserveInbound(endpoint, result string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(endpoint, result).Inc()
}

func (m *DispatchMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}
