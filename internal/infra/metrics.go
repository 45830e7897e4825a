package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	proxiedRequests  atomic.Uint64
	proxyFailures    atomic.Uint64
	broadcastsSent   atomic.Uint64
	messagesDropped  atomic.Uint64
	upstreamMessages atomic.Uint64

	// Latency tracking for proxied requests
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeSessions    atomic.Int32
	upstreamConnected atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordProxiedRequest records a completed reverse-proxy round trip.
func (m *Metrics) RecordProxiedRequest(latency time.Duration) {
	m.proxiedRequests.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordProxyFailure records an unreachable upstream.
func (m *Metrics) RecordProxyFailure() {
	m.proxyFailures.Add(1)
}

// RecordBroadcast records one delivered broadcast envelope.
func (m *Metrics) RecordBroadcast() {
	m.broadcastsSent.Add(1)
}

// RecordDrop records a message dropped instead of delivered.
func (m *Metrics) RecordDrop() {
	m.messagesDropped.Add(1)
}

// RecordUpstreamMessage records a message relayed from an upstream feed.
func (m *Metrics) RecordUpstreamMessage() {
	m.upstreamMessages.Add(1)
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	m.activeSessions.Add(1)
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	m.activeSessions.Add(-1)
}

// UpstreamOpened increments the open upstream gauge.
func (m *Metrics) UpstreamOpened() {
	m.upstreamConnected.Add(1)
}

// UpstreamClosed decrements the open upstream gauge.
func (m *Metrics) UpstreamClosed() {
	m.upstreamConnected.Add(-1)
}

// Snapshot is a point-in-time copy of all metric values.
type Snapshot struct {
	ProxiedRequests  uint64
	ProxyFailures    uint64
	BroadcastsSent   uint64
	MessagesDropped  uint64
	UpstreamMessages uint64
	AvgLatencyNs     int64
	ActiveSessions   int32
	UpstreamOpen     int32
}

// Read returns a consistent-enough snapshot for logging and health output.
func (m *Metrics) Read() Snapshot {
	s := Snapshot{
		ProxiedRequests:  m.proxiedRequests.Load(),
		ProxyFailures:    m.proxyFailures.Load(),
		BroadcastsSent:   m.broadcastsSent.Load(),
		MessagesDropped:  m.messagesDropped.Load(),
		UpstreamMessages: m.upstreamMessages.Load(),
		ActiveSessions:   m.activeSessions.Load(),
		UpstreamOpen:     m.upstreamConnected.Load(),
	}
	if n := m.latencyCount.Load(); n > 0 {
		s.AvgLatencyNs = m.latencySumNs.Load() / int64(n)
	}
	return s
}
