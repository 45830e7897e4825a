package infra

import (
	"testing"
	"time"
)

func TestMetrics_Counters(t *testing.T) {
	m := &Metrics{}

	m.RecordProxiedRequest(10 * time.Millisecond)
	m.RecordProxiedRequest(20 * time.Millisecond)
	m.RecordProxyFailure()
	m.RecordBroadcast()
	m.RecordDrop()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.UpstreamOpened()

	s := m.Read()
	if s.ProxiedRequests != 2 {
		t.Errorf("Expected 2 proxied requests, got %d", s.ProxiedRequests)
	}
	if s.ProxyFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", s.ProxyFailures)
	}
	if s.AvgLatencyNs != (15 * time.Millisecond).Nanoseconds() {
		t.Errorf("Expected avg latency 15ms, got %dns", s.AvgLatencyNs)
	}
	if s.ActiveSessions != 1 {
		t.Errorf("Expected 1 active session, got %d", s.ActiveSessions)
	}
	if s.UpstreamOpen != 1 {
		t.Errorf("Expected 1 open upstream, got %d", s.UpstreamOpen)
	}
	if s.BroadcastsSent != 1 || s.MessagesDropped != 1 {
		t.Errorf("Unexpected broadcast counters: %+v", s)
	}
}

func TestMetrics_EmptyRead(t *testing.T) {
	m := &Metrics{}
	if s := m.Read(); s.AvgLatencyNs != 0 {
		t.Errorf("Expected zero average without samples, got %d", s.AvgLatencyNs)
	}
}
