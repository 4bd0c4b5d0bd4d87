package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var out dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return out.GetCounter().GetValue()
}

func TestDispatchMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.ObserveCallRouted("divert", "after_hours")
	m.ObserveCallRouted("divert", "after_hours")
	m.ObserveOutbound("missed_call_greeting", "sent")
	m.ObserveAIReply("escalated")
	m.ObserveInbound("voice", "ok")
	m.ObserveWebhookLatency("voice", 0.02)

	if got := counterValue(t, m.callsRouted, "divert", "after_hours"); got != 2 {
		t.Fatalf("expected 2 routed calls, got %v", got)
	}
	if got := counterValue(t, m.outboundTotal, "missed_call_greeting", "sent"); got != 1 {
		t.Fatalf("expected 1 outbound, got %v", got)
	}
	if got := counterValue(t, m.aiReplies, "escalated"); got != 1 {
		t.Fatalf("expected 1 escalated reply, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 metric families, got %d", len(families))
	}
}

func TestDispatchMetricsNilSafe(t *testing.T) {
	var m *DispatchMetrics
	m.ObserveCallRouted("dial", "business_hours")
	m.ObserveOutbound("ai_reply", "failed")
	m.ObserveAIReply("suppressed")
	m.ObserveInbound("sms", "duplicate")
	m.ObserveWebhookLatency("sms", 0.1)
}
